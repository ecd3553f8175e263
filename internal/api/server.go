package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/database"
	"github.com/dbehnke/mumodem/internal/metrics"
	"github.com/dbehnke/mumodem/internal/modem"
)

// Version is reported by /health
var Version = "dev"

const (
	defaultPacketLimit = 50
	maxPacketLimit     = 1000
)

// Status is a point-in-time snapshot of the modem published by its owner
type Status struct {
	Mode           string      `json:"mode"`
	FrequencyModel string      `json:"frequency_model"`
	TargetMode     string      `json:"target_mode"`
	TargetModel    string      `json:"target_frequency_model"`
	ModePending    bool        `json:"mode_pending"`
	CommandPending bool        `json:"command_pending"`
	Channel        uint8       `json:"channel"`
	SerialNumber   uint32      `json:"serial_number,omitempty"`
	Stats          modem.Stats `json:"stats"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// StatusSource returns the latest snapshot; it must be safe to call from
// HTTP handlers while the modem goroutine runs
type StatusSource interface {
	Status() Status
}

// PacketStore is the read side of the packet log
type PacketStore interface {
	Recent(limit int) ([]database.Packet, error)
	Statistics() (map[string]interface{}, error)
}

// RssiStore is the read side of the scan log
type RssiStore interface {
	Latest() ([]database.RssiSample, error)
}

// Config configures the HTTP listener
type Config struct {
	Addr        string
	CorsOrigins []string
}

// Server is the HTTP status API
type Server struct {
	cfg     Config
	router  *gin.Engine
	status  StatusSource
	packets PacketStore
	rssi    RssiStore
	started time.Time
	log     zerolog.Logger
}

// NewServer builds the router. packets and rssi may be nil when the
// database is disabled; their endpoints then answer 503.
func NewServer(cfg Config, status StatusSource, packets PacketStore, rssi RssiStore, log zerolog.Logger) *Server {
	metrics.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		cfg:     cfg,
		router:  r,
		status:  status,
		packets: packets,
		rssi:    rssi,
		started: time.Now(),
		log:     log,
	}
	s.registerRoutes()
	return s
}

// Router returns the gin engine, used by tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if v := strings.TrimRight(strings.TrimSpace(o), "/"); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost"}
	}
	return out
}

// RequestLogger logs one line per request at a level chosen by status
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}
