package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/packets", s.handlePackets)
	s.router.GET("/rssi", s.handleRssi)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).String(),
		"service": "mumodemd",
		"version": Version,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "modem not running"})
		return
	}
	c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) handlePackets(c *gin.Context) {
	if s.packets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "packet store disabled"})
		return
	}

	limit := defaultPacketLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxPacketLimit)
	}

	packets, err := s.packets.Recent(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("query packets")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := s.packets.Statistics()
	if err != nil {
		s.log.Error().Err(err).Msg("packet statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"packets":    packets,
		"statistics": stats,
	})
}

func (s *Server) handleRssi(c *gin.Context) {
	if s.rssi == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rssi store disabled"})
		return
	}
	samples, err := s.rssi.Latest()
	if err != nil {
		s.log.Error().Err(err).Msg("query rssi scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(samples) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned_at": samples[0].ScannedAt,
		"samples":    samples,
	})
}
