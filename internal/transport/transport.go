package transport

import (
	"errors"

	"github.com/dbehnke/mumodem/internal/protocol"
)

// ErrClosed is returned by operations on a closed transport
var ErrClosed = errors.New("transport closed")

// Transport is the byte source and sink the modem core runs on.
// PollByte never blocks; Write reports FailLbt or Fail on rejection.
type Transport interface {
	PollByte() (byte, bool)
	Write(p []byte) protocol.Error
}
