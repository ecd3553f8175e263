package parser

import "fmt"

// FrameBuffer is a fixed-capacity byte accumulator for one parse cycle.
// The write cursor never passes the capacity; Append reports the overflow
// instead of writing.
type FrameBuffer struct {
	data   []byte
	cursor int
}

// NewFrameBuffer creates a buffer holding at most capacity bytes
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameBuffer{data: make([]byte, capacity)}
}

// Append stores b at the cursor. Returns false, leaving the buffer
// untouched, when the buffer is already full.
func (fb *FrameBuffer) Append(b byte) bool {
	if fb.cursor >= len(fb.data) {
		return false
	}
	fb.data[fb.cursor] = b
	fb.cursor++
	return true
}

// Reset empties the buffer without releasing storage
func (fb *FrameBuffer) Reset() {
	fb.cursor = 0
}

// Len returns the number of bytes written this cycle
func (fb *FrameBuffer) Len() int {
	return fb.cursor
}

// Cap returns the fixed capacity
func (fb *FrameBuffer) Cap() int {
	return len(fb.data)
}

// Remaining returns how many more bytes fit
func (fb *FrameBuffer) Remaining() int {
	return len(fb.data) - fb.cursor
}

// Bytes returns a view of the written bytes. The slice is only valid until
// the next Append or Reset.
func (fb *FrameBuffer) Bytes() []byte {
	return fb.data[:fb.cursor]
}

func (fb *FrameBuffer) String() string {
	return fmt.Sprintf("FrameBuffer: len=%d, cap=%d", fb.cursor, len(fb.data))
}
