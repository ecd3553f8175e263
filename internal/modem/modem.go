package modem

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
	"github.com/dbehnke/mumodem/internal/transport"
)

var (
	// ErrTimeout is returned when no response arrived before the deadline
	ErrTimeout = fmt.Errorf("%w: response timeout", protocol.Fail)
	// ErrParse is returned when the response line could not be parsed
	ErrParse = fmt.Errorf("%w: malformed response", protocol.Fail)
	// ErrUnexpected is returned when the modem answered with the wrong value or family
	ErrUnexpected = fmt.Errorf("%w: unexpected response", protocol.Fail)
)

// Config holds the Modem settings layered on top of the dispatcher Options
type Config struct {
	Options

	// AddRssi enables the RSSI field on received frames during Begin
	AddRssi bool
	// Idle runs between polls while an operation waits; defaults to a 1ms sleep
	Idle func()
	// Sleep waits out fixed settle delays; defaults to a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// Modem is the caller-owned handle for one attached MU modem. It is not
// safe for concurrent use; one goroutine owns it and drives Poll.
type Modem struct {
	d       *Dispatcher
	log     zerolog.Logger
	addRssi bool
	idle    func()
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a modem on transport t
func New(t transport.Transport, clock Clock, cfg Config) *Modem {
	m := &Modem{
		d:       NewDispatcher(t, clock, cfg.Options),
		log:     cfg.Logger.With().Str("component", "modem").Logger(),
		addRssi: cfg.AddRssi,
		idle:    cfg.Idle,
		sleep:   cfg.Sleep,
	}
	if m.idle == nil {
		m.idle = func() { time.Sleep(time.Millisecond) }
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dispatcher exposes the underlying command dispatcher
func (m *Modem) Dispatcher() *Dispatcher {
	return m.d
}

// Poll advances the parser; the owning goroutine calls it continuously
func (m *Modem) Poll() int {
	return m.d.Poll()
}

// Events delivers received packets and other unsolicited responses
func (m *Modem) Events() <-chan parser.Response {
	return m.d.Events()
}

// SetMode forwards to the mode controller
func (m *Modem) SetMode(mode protocol.Mode) bool {
	return m.d.Modes().SetMode(mode)
}

// SetFrequencyModel forwards to the mode controller
func (m *Modem) SetFrequencyModel(model protocol.FrequencyModel) bool {
	return m.d.Modes().SetFrequencyModel(model)
}

// Current returns the active mode and frequency model
func (m *Modem) Current() (protocol.Mode, protocol.FrequencyModel) {
	return m.d.Modes().Current()
}

func (m *Modem) model() protocol.FrequencyModel {
	_, model := m.d.Modes().Target()
	return model
}

// Wait polls until c resolves. Cancelling ctx aborts the pending command.
func (m *Modem) Wait(ctx context.Context, c *Completion) (Result, error) {
	for {
		m.d.Poll()
		if c.Ready() {
			return c.Result(), nil
		}
		select {
		case <-ctx.Done():
			m.d.Abort()
			return c.Result(), ctx.Err()
		default:
		}
		m.idle()
	}
}

// Exec issues req and waits for its result. Every failure, including a
// timeout, parse error or mismatched family, is returned as an error that
// matches protocol.Fail or the specific protocol.Error with errors.Is.
func (m *Modem) Exec(ctx context.Context, req Request) (Result, error) {
	c, st := m.d.Issue(req)
	if st != protocol.Ok {
		return Result{}, st
	}
	r, err := m.Wait(ctx, c)
	if err != nil {
		return r, err
	}
	return r, resultErr(r)
}

func resultErr(r Result) error {
	if r.Err != protocol.Ok {
		return r.Err
	}
	switch r.Response.Kind {
	case protocol.KindTimeout:
		return ErrTimeout
	case protocol.KindParseError:
		return fmt.Errorf("%w: %s", ErrParse, r.Response.Reason)
	}
	if r.Mismatch {
		return fmt.Errorf("%w: %s", ErrUnexpected, r.Response)
	}
	return nil
}

// await waits for a follow-up line the modem sends without a new command
func (m *Modem) await(ctx context.Context, expect protocol.ResponseKind, timeout time.Duration) (Result, error) {
	c, st := m.d.Await(expect, timeout)
	if st != protocol.Ok {
		return Result{}, st
	}
	return m.Wait(ctx, c)
}
