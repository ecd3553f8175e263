package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/api"
	"github.com/dbehnke/mumodem/internal/database"
	"github.com/dbehnke/mumodem/internal/metrics"
	"github.com/dbehnke/mumodem/internal/modem"
	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
)

const (
	POLL_INTERVAL  = 5 * time.Millisecond
	STATS_INTERVAL = 30 * time.Second
)

// PacketSink stores received frames
type PacketSink interface {
	Save(packet *database.Packet) error
}

// ScanSink stores all-channel RSSI scans
type ScanSink interface {
	SaveScan(at time.Time, first uint8, table []int) (int64, error)
}

// Station owns the modem. Every modem call happens on the goroutine running
// Start and Run; other goroutines only read the published status.
type Station struct {
	modem        *modem.Modem
	clock        modem.Clock
	packets      PacketSink
	scans        ScanSink
	scanInterval time.Duration
	log          zerolog.Logger

	channel uint8
	serial  uint32
	status  atomic.Pointer[api.Status]

	received uint64
	scanned  uint64
}

// NewStation wires a modem to its stores. packets and scans may be nil.
func NewStation(m *modem.Modem, clock modem.Clock, packets PacketSink, scans ScanSink, scanInterval time.Duration, log zerolog.Logger) *Station {
	s := &Station{
		modem:        m,
		clock:        clock,
		packets:      packets,
		scans:        scans,
		scanInterval: scanInterval,
		log:          log,
	}
	s.publish()
	return s
}

// Start resets the modem, selects the startup channel and reads the unit's
// identity, then switches to the configured framing mode
func (s *Station) Start(ctx context.Context, channel uint8, setChannel bool, mode protocol.Mode) error {
	if err := s.modem.Begin(ctx); err != nil {
		return fmt.Errorf("modem begin: %w", err)
	}

	if setChannel {
		if err := s.modem.SetChannel(ctx, channel, false); err != nil {
			return fmt.Errorf("set channel 0x%02X: %w", channel, err)
		}
	}
	ch, err := s.modem.GetChannel(ctx)
	if err != nil {
		return fmt.Errorf("read channel: %w", err)
	}
	s.channel = ch

	if sn, err := s.modem.GetSerialNumber(ctx); err != nil {
		s.log.Warn().Err(err).Msg("serial number unavailable")
	} else {
		s.serial = sn
	}

	s.log.Info().
		Str("channel", fmt.Sprintf("0x%02X", s.channel)).
		Uint32("serial", s.serial).
		Msg("modem ready")

	if mode != protocol.FskCmd {
		s.modem.SetMode(mode)
	}
	s.publish()
	return nil
}

// Run polls the modem until ctx is cancelled
func (s *Station) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(POLL_INTERVAL)
	statsTicker := time.NewTicker(STATS_INTERVAL)
	defer pollTicker.Stop()
	defer statsTicker.Stop()

	var scanC <-chan time.Time
	if s.scanInterval > 0 && s.scans != nil {
		scanTicker := time.NewTicker(s.scanInterval)
		defer scanTicker.Stop()
		scanC = scanTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			s.Step()
		case <-scanC:
			s.ScanRssi(ctx)
		case <-statsTicker.C:
			s.printStats()
		}
	}
}

// Step polls once and handles everything that arrived
func (s *Station) Step() {
	s.modem.Poll()
	s.drainEvents()
	s.publish()
}

func (s *Station) drainEvents() {
	for {
		select {
		case resp := <-s.modem.Events():
			s.handleEvent(resp)
		default:
			return
		}
	}
}

func (s *Station) handleEvent(resp parser.Response) {
	switch resp.Kind {
	case protocol.KindDataReceived:
		if resp.Frame == nil {
			return
		}
		s.received++
		s.log.Debug().Str("frame", resp.Frame.String()).Msg("packet received")
		if s.packets == nil {
			return
		}
		packet := database.NewPacket(resp.Frame, s.channel, s.clock.Now())
		if err := s.packets.Save(&packet); err != nil {
			s.log.Error().Err(err).Msg("store packet")
			return
		}
		metrics.RecordPacketStored()
	case protocol.KindParseError:
		s.log.Warn().Str("reason", resp.Reason).Bytes("raw", resp.Raw).Msg("unparseable line from modem")
	default:
		s.log.Debug().Str("response", resp.String()).Msg("unsolicited response")
	}
}

// ScanRssi runs one all-channel scan and stores it
func (s *Station) ScanRssi(ctx context.Context) {
	mode, model := s.modem.Dispatcher().Modes().Target()
	if mode != protocol.FskCmd {
		return
	}
	dst := make([]int16, model.ChannelCount())
	n, err := s.modem.GetAllChannelsRssi(ctx, dst)
	s.drainEvents()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Msg("rssi scan failed")
			metrics.RecordRssiScan(false)
		}
		return
	}

	table := make([]int, n)
	for i := 0; i < n; i++ {
		table[i] = int(dst[i])
	}
	first, _ := model.ChannelRange()
	if _, err := s.scans.SaveScan(s.clock.Now(), first, table); err != nil {
		s.log.Error().Err(err).Msg("store rssi scan")
		metrics.RecordRssiScan(false)
		return
	}
	s.scanned++
	metrics.RecordRssiScan(true)
	s.publish()
}

func (s *Station) publish() {
	mode, model := s.modem.Current()
	modes := s.modem.Dispatcher().Modes()
	targetMode, targetModel := modes.Target()
	st := &api.Status{
		Mode:           mode.String(),
		FrequencyModel: model.String(),
		TargetMode:     targetMode.String(),
		TargetModel:    targetModel.String(),
		ModePending:    modes.Pending(),
		CommandPending: s.modem.Dispatcher().Pending() != nil,
		Channel:        s.channel,
		SerialNumber:   s.serial,
		Stats:          s.modem.Dispatcher().Stats(),
		UpdatedAt:      s.clock.Now(),
	}
	s.status.Store(st)
}

// Status returns the latest published snapshot; safe from any goroutine
func (s *Station) Status() api.Status {
	return *s.status.Load()
}

func (s *Station) printStats() {
	stats := s.modem.Dispatcher().Stats()
	s.log.Info().
		Uint64("packets", s.received).
		Uint64("scans", s.scanned).
		Uint64("issued", stats.Issued).
		Uint64("timeouts", stats.Timeouts).
		Uint64("parse_errors", stats.ParseErrors).
		Uint64("dropped", stats.Dropped).
		Msg("station stats")
}
