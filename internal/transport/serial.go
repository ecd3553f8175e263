package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/dbehnke/mumodem/internal/metrics"
	"github.com/dbehnke/mumodem/internal/protocol"
)

// SerialConfig describes the UART the modem is attached to
type SerialConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
	RingSize    int
}

// Serial is a Transport on a local serial port. A receive goroutine only
// copies bytes into the ring buffer; parsing happens in the poll loop.
type Serial struct {
	port serial.Port
	rx   *RingBuffer
	log  zerolog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

var _ Transport = (*Serial)(nil)

// OpenSerial opens the port at 8N1 and starts the receive goroutine
func OpenSerial(cfg SerialConfig, log zerolog.Logger) (*Serial, error) {
	if cfg.Baud == 0 {
		cfg.Baud = protocol.MU_DEFAULT_BAUD
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}
	if cfg.RingSize == 0 {
		cfg.RingSize = protocol.MU_RING_BUFFER_SIZE
	}

	port, err := serial.Open(cfg.Port, serialMode(cfg.Baud))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}

	s := &Serial{
		port: port,
		rx:   NewRingBuffer(cfg.RingSize, cfg.Port),
		log:  log.With().Str("port", cfg.Port).Logger(),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.receive()

	s.log.Info().Int("baud", cfg.Baud).Msg("serial port opened")
	return s, nil
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// ListPorts returns the serial ports present on the host
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (s *Serial) receive() {
	defer s.wg.Done()
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			if stored := s.rx.Push(buf[:n]); stored < n {
				metrics.RecordRxDropped(n - stored)
				s.log.Warn().Int("dropped", n-stored).Msg("receive ring buffer full")
			}
		}
		select {
		case <-s.done:
			return
		default:
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.log.Error().Err(err).Msg("serial read failed")
			return
		}
	}
}

// PollByte pops one received byte without blocking
func (s *Serial) PollByte() (byte, bool) {
	return s.rx.Pop()
}

// Write sends p in full
func (s *Serial) Write(p []byte) protocol.Error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return protocol.Fail
	}

	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			s.log.Error().Err(err).Msg("serial write failed")
			return protocol.Fail
		}
		p = p[n:]
	}
	return protocol.Ok
}

// SetBaudRate reconfigures the host side after the modem changed its rate
func (s *Serial) SetBaudRate(baud int) error {
	if err := s.port.SetMode(serialMode(baud)); err != nil {
		return fmt.Errorf("set baud %d: %w", baud, err)
	}
	s.log.Info().Int("baud", baud).Msg("serial baud rate changed")
	return nil
}

// Err returns the error that stopped the receive goroutine, if any
func (s *Serial) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && s.err == nil {
		return ErrClosed
	}
	return s.err
}

// Close stops the receive goroutine and closes the port
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}
