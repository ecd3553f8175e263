package parser

import (
	"fmt"

	"github.com/dbehnke/mumodem/internal/protocol"
)

// Line is a copy of the frame buffer taken at a terminal parse outcome
type Line struct {
	Raw    []byte
	Prefix string // two identifying letters, empty for binary frames
	Family Family
	Known  bool   // Prefix is registered in the family table
	Value  string // bytes after '=' up to any option tail
	Option string // option tail without the leading '/'
	Frame  *RadioDataFrame
}

// RadioDataFrame is a packet received over the air
type RadioDataFrame struct {
	Payload []byte
	RSSI    int  // dBm
	HasRSSI bool // the frame carried an RSSI field
	Route   []uint8
}

func (f RadioDataFrame) String() string {
	if f.HasRSSI {
		return fmt.Sprintf("RadioDataFrame: len=%d, rssi=%ddBm, route=%v", len(f.Payload), f.RSSI, f.Route)
	}
	return fmt.Sprintf("RadioDataFrame: len=%d, route=%v", len(f.Payload), f.Route)
}

// Response is one classified protocol event. Kind selects which of the
// other fields are meaningful.
type Response struct {
	Kind   protocol.ResponseKind
	Prefix string
	Raw    []byte
	Value  string
	Option string

	Channel      uint8  // Channel
	SerialPrefix byte   // SerialNumber, 0 when the unit reports digits only
	Serial       uint32 // SerialNumber
	AckLength    uint8  // DtAck
	RSSI         int    // RssiCurrentChannel, dBm
	RSSITable    []int  // RssiAllChannels, dBm per channel from the lowest
	Frame        *RadioDataFrame

	Reason string // ParseError detail
}

// IsError reports whether the response is a ParseError or Timeout
func (r Response) IsError() bool {
	return r.Kind == protocol.KindParseError || r.Kind == protocol.KindTimeout
}

func (r Response) String() string {
	switch r.Kind {
	case protocol.KindParseError:
		return fmt.Sprintf("ParseError(%s)", r.Reason)
	case protocol.KindChannel:
		return fmt.Sprintf("Channel(0x%02X)", r.Channel)
	case protocol.KindSerialNumber:
		return fmt.Sprintf("SerialNumber(%d)", r.Serial)
	case protocol.KindDtAck:
		return fmt.Sprintf("DtAck(%d)", r.AckLength)
	case protocol.KindRssiCurrentChannel:
		return fmt.Sprintf("RssiCurrentChannel(%ddBm)", r.RSSI)
	case protocol.KindRssiAllChannels:
		return fmt.Sprintf("RssiAllChannels(%d channels)", len(r.RSSITable))
	case protocol.KindDataReceived:
		if r.Frame != nil {
			return "DataReceived(" + r.Frame.String() + ")"
		}
	case protocol.KindGenericResponse:
		return fmt.Sprintf("GenericResponse(%q)", r.Raw)
	}
	return r.Kind.String()
}

// TimeoutResponse is delivered when a command's deadline passes
func TimeoutResponse() Response {
	return Response{Kind: protocol.KindTimeout}
}

// IdleResponse is the rest state
func IdleResponse() Response {
	return Response{Kind: protocol.KindIdle}
}
