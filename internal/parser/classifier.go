package parser

import (
	"fmt"
	"strings"

	"github.com/dbehnke/mumodem/internal/protocol"
)

// Classify maps a terminal parse outcome and its line to a typed response.
// Malformed numeric content yields ParseError.
func Classify(state CmdState, line Line, model protocol.FrequencyModel) Response {
	switch state {
	case Garbage:
		return parseError(line, "garbage")
	case Overflow:
		return parseError(line, "overflow")
	case FinishedDrResponse:
		return classifyFrame(line)
	case FinishedCmdResponse:
		return classifyLine(line, model)
	}
	return IdleResponse()
}

func parseError(line Line, reason string) Response {
	return Response{
		Kind:   protocol.KindParseError,
		Prefix: line.Prefix,
		Raw:    line.Raw,
		Reason: reason,
	}
}

func classifyFrame(line Line) Response {
	if line.Frame == nil {
		return parseError(line, "data frame incomplete")
	}
	frame := *line.Frame
	if line.Option != "" {
		opt := line.Option
		if opt[0] != 'R' {
			return parseError(line, "unknown data frame option "+opt)
		}
		route, err := ParseRoute(strings.TrimPrefix(opt[1:], " "), protocol.MU_MAX_DR_ROUTE_NODES)
		if err != nil {
			return parseError(line, err.Error())
		}
		frame.Route = route
	}
	return Response{
		Kind:   protocol.KindDataReceived,
		Prefix: line.Prefix,
		Raw:    line.Raw,
		Option: line.Option,
		Frame:  &frame,
	}
}

func classifyLine(line Line, model protocol.FrequencyModel) Response {
	if !line.Known {
		return parseError(line, "unrecognized family "+line.Prefix)
	}
	r := Response{
		Kind:   line.Family.Kind,
		Prefix: line.Prefix,
		Raw:    line.Raw,
		Value:  line.Value,
		Option: line.Option,
	}

	switch r.Kind {
	case protocol.KindChannel:
		ch, err := ParseHexByte(r.Value)
		if err != nil {
			return parseError(line, err.Error())
		}
		r.Channel = ch
	case protocol.KindSaveValue:
		if r.Value == "" {
			return parseError(line, "save response without value")
		}
	case protocol.KindSerialNumber:
		if len(line.Raw) < protocol.MU_SERIAL_NUMBER_MINLEN {
			return parseError(line, "serial number too short")
		}
		prefix, serial, err := ParseSerial(r.Value)
		if err != nil {
			return parseError(line, err.Error())
		}
		r.SerialPrefix, r.Serial = prefix, serial
	case protocol.KindDtAck:
		n, err := ParseHexByte(r.Value)
		if err != nil {
			return parseError(line, err.Error())
		}
		r.AckLength = n
	case protocol.KindRssiCurrentChannel:
		v, err := ParseHexByte(r.Value)
		if err != nil {
			return parseError(line, err.Error())
		}
		r.RSSI = -int(v)
	case protocol.KindRssiAllChannels:
		table, err := parseRSSITable(r.Value, model.ChannelCount())
		if err != nil {
			return parseError(line, err.Error())
		}
		r.RSSITable = table
	case protocol.KindShowMode:
		r.Value = strings.TrimSpace(strings.TrimPrefix(r.Value, "="))
	case protocol.KindDataReceived:
		return parseError(line, "data family without frame")
	}
	return r
}

func parseRSSITable(value string, channels int) ([]int, error) {
	if len(value) != channels*2 {
		return nil, fmt.Errorf("rssi table: %d hex digits, want %d", len(value), channels*2)
	}
	table := make([]int, channels)
	for i := range table {
		v, err := ParseHexByte(value[i*2 : i*2+2])
		if err != nil {
			return nil, err
		}
		table[i] = -int(v)
	}
	return table, nil
}
