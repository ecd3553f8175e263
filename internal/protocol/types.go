package protocol

import (
	"fmt"
	"strings"
)

// Error is the result of a command-issuing operation. Ok is the only
// non-failure value; everything else implements error.
type Error int

const (
	Ok Error = iota
	Busy
	InvalidArg
	FailLbt
	Fail
	BufferTooSmall
)

func (e Error) String() string {
	switch e {
	case Ok:
		return "Ok"
	case Busy:
		return "Busy"
	case InvalidArg:
		return "InvalidArg"
	case FailLbt:
		return "FailLbt"
	case Fail:
		return "Fail"
	case BufferTooSmall:
		return "BufferTooSmall"
	default:
		return fmt.Sprintf("Error(%d)", int(e))
	}
}

// Error implements the error interface
func (e Error) Error() string {
	return "mu: " + e.String()
}

// Err converts Ok to nil so results can be returned as plain errors
func (e Error) Err() error {
	if e == Ok {
		return nil
	}
	return e
}

// Mode selects which branch of the parser interprets incoming bytes
type Mode int

const (
	FskCmd Mode = iota // Textual *XX=value lines
	FskBin             // Binary [size][address][payload][rssi] frames
)

func (m Mode) String() string {
	switch m {
	case FskCmd:
		return "FskCmd"
	case FskBin:
		return "FskBin"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "cmd"/"bin" as well as the enum names
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cmd", "fskcmd":
		return FskCmd, nil
	case "bin", "fskbin":
		return FskBin, nil
	}
	return FskCmd, fmt.Errorf("unknown mode %q", s)
}

// FrequencyModel identifies the radio variant
type FrequencyModel int

const (
	MHz429  FrequencyModel = iota // MU-3
	MHz1216                       // MU-4
)

func (f FrequencyModel) String() string {
	switch f {
	case MHz429:
		return "429MHz"
	case MHz1216:
		return "1216MHz"
	default:
		return fmt.Sprintf("FrequencyModel(%d)", int(f))
	}
}

// ParseFrequencyModel accepts "429" or "1216", with or without a MHz suffix
func ParseFrequencyModel(s string) (FrequencyModel, error) {
	v := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "mhz")
	switch v {
	case "", "429":
		return MHz429, nil
	case "1216":
		return MHz1216, nil
	}
	return MHz429, fmt.Errorf("unknown frequency model %q", s)
}

// ChannelRange returns the inclusive channel numbers valid for the model
func (f FrequencyModel) ChannelRange() (min, max uint8) {
	if f == MHz1216 {
		return MU_1216_CHANNEL_MIN, MU_1216_CHANNEL_MAX
	}
	return MU_429_CHANNEL_MIN, MU_429_CHANNEL_MAX
}

// ChannelCount is the number of entries in an all-channel RSSI table
func (f FrequencyModel) ChannelCount() int {
	lo, hi := f.ChannelRange()
	return int(hi-lo) + 1
}

// ValidChannel reports whether ch is inside the model's channel space
func (f FrequencyModel) ValidChannel(ch uint8) bool {
	lo, hi := f.ChannelRange()
	return ch >= lo && ch <= hi
}

// ResponseKind tags the variants of a classified response
type ResponseKind int

const (
	KindIdle ResponseKind = iota
	KindParseError
	KindTimeout
	KindShowMode
	KindSaveValue
	KindChannel
	KindSerialNumber
	KindDtAck
	KindDataReceived
	KindRssiCurrentChannel
	KindGenericResponse
	KindRssiAllChannels

	// KindAny is only used as an expectation: any terminal response matches
	KindAny ResponseKind = -1
)

var responseKindNames = map[ResponseKind]string{
	KindIdle:               "Idle",
	KindParseError:         "ParseError",
	KindTimeout:            "Timeout",
	KindShowMode:           "ShowMode",
	KindSaveValue:          "SaveValue",
	KindChannel:            "Channel",
	KindSerialNumber:       "SerialNumber",
	KindDtAck:              "DtAck",
	KindDataReceived:       "DataReceived",
	KindRssiCurrentChannel: "RssiCurrentChannel",
	KindGenericResponse:    "GenericResponse",
	KindRssiAllChannels:    "RssiAllChannels",
	KindAny:                "Any",
}

func (k ResponseKind) String() string {
	if name, ok := responseKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ResponseKind(%d)", int(k))
}

// ParseResponseKind is the inverse of String, used by config overrides
func ParseResponseKind(s string) (ResponseKind, error) {
	for k, name := range responseKindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return KindIdle, fmt.Errorf("unknown response kind %q", s)
}
