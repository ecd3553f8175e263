package transport

import (
	"fmt"
	"sync"
)

// RingBuffer is the byte FIFO between the receive side of a transport and
// the poll loop. The receive side only pushes; the poll loop only pops.
type RingBuffer struct {
	mu      sync.Mutex
	buffer  []byte
	head    int
	tail    int
	size    int
	dropped uint64
	name    string
}

// NewRingBuffer creates a ring buffer with the given capacity
func NewRingBuffer(capacity int, name string) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		buffer: make([]byte, capacity),
		name:   name,
	}
}

// Push stores as much of data as fits and returns the count stored.
// Bytes that do not fit are counted as dropped.
func (rb *RingBuffer) Push(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	stored := 0
	for _, b := range data {
		if rb.size == len(rb.buffer) {
			break
		}
		rb.buffer[rb.head] = b
		rb.head = (rb.head + 1) % len(rb.buffer)
		rb.size++
		stored++
	}
	rb.dropped += uint64(len(data) - stored)
	return stored
}

// Pop removes the oldest byte
func (rb *RingBuffer) Pop() (byte, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return 0, false
	}
	b := rb.buffer[rb.tail]
	rb.tail = (rb.tail + 1) % len(rb.buffer)
	rb.size--
	return b, true
}

// Clear empties the ring buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.tail = 0
	rb.size = 0
}

// DataSize returns the number of buffered bytes
func (rb *RingBuffer) DataSize() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// FreeSpace returns how many bytes can be pushed without dropping
func (rb *RingBuffer) FreeSpace() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buffer) - rb.size
}

// Dropped returns the total number of bytes rejected since creation
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}

func (rb *RingBuffer) String() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return fmt.Sprintf("RingBuffer[%s]: size=%d, capacity=%d, dropped=%d",
		rb.name, rb.size, len(rb.buffer), rb.dropped)
}
