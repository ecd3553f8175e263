package transport

import (
	"sync"

	"github.com/dbehnke/mumodem/internal/protocol"
)

// Memory is an in-process Transport. Inject plays the receive side; an
// optional responder queues a reply for every write, emulating a modem.
type Memory struct {
	rx *RingBuffer

	mu        sync.Mutex
	written   [][]byte
	responder func(cmd []byte) []byte
	failNext  protocol.Error
}

var _ Transport = (*Memory)(nil)

// NewMemory creates a memory transport with a receive ring of ringSize bytes
func NewMemory(ringSize int) *Memory {
	if ringSize <= 0 {
		ringSize = protocol.MU_RING_BUFFER_SIZE
	}
	return &Memory{rx: NewRingBuffer(ringSize, "memory")}
}

// Inject queues bytes as if they arrived on the wire
func (m *Memory) Inject(data []byte) int {
	return m.rx.Push(data)
}

// InjectString is Inject for text lines
func (m *Memory) InjectString(s string) int {
	return m.Inject([]byte(s))
}

// SetResponder installs a function producing the reply to each write
func (m *Memory) SetResponder(f func(cmd []byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = f
}

// FailNextWrite makes the next Write return e without recording it
func (m *Memory) FailNextWrite(e protocol.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = e
}

// PollByte pops one injected byte
func (m *Memory) PollByte() (byte, bool) {
	return m.rx.Pop()
}

// Write records p and queues the responder's reply
func (m *Memory) Write(p []byte) protocol.Error {
	m.mu.Lock()
	if m.failNext != protocol.Ok {
		e := m.failNext
		m.failNext = protocol.Ok
		m.mu.Unlock()
		return e
	}
	cmd := append([]byte(nil), p...)
	m.written = append(m.written, cmd)
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		if reply := responder(cmd); len(reply) > 0 {
			m.Inject(reply)
		}
	}
	return protocol.Ok
}

// Written returns a copy of every accepted write, oldest first
func (m *Memory) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Pending returns the number of injected bytes not yet polled
func (m *Memory) Pending() int {
	return m.rx.DataSize()
}
