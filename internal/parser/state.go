package parser

import "fmt"

// State is the position of the byte parser inside the current line or frame
type State int

const (
	StateStart State = iota
	StateReadCmdFirstLetter
	StateReadCmdSecondLetter
	StateReadCmdParam
	StateReadRawString
	StateReadCmdUntilCR
	StateReadCmdUntilLF // line closed by CR; a directly following LF is absorbed
	StateReadOptionUntilCR
	StateReadOptionUntilLF // option tail closed by CR; a directly following LF is absorbed
	StateRadioDrSize
	StateRadioDrSkipAddress
	StateRadioDrPayload
	StateReadDsRSSI
)

var stateNames = [...]string{
	"Start",
	"ReadCmdFirstLetter",
	"ReadCmdSecondLetter",
	"ReadCmdParam",
	"ReadRawString",
	"ReadCmdUntilCR",
	"ReadCmdUntilLF",
	"ReadOptionUntilCR",
	"ReadOptionUntilLF",
	"RadioDrSize",
	"RadioDrSkipAddress",
	"RadioDrPayload",
	"ReadDsRSSI",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CmdState is the outcome of feeding one byte. Parsing is the only
// non-terminal value.
type CmdState int

const (
	Parsing CmdState = iota
	Garbage
	Overflow
	FinishedCmdResponse
	FinishedDrResponse
)

func (c CmdState) String() string {
	switch c {
	case Parsing:
		return "Parsing"
	case Garbage:
		return "Garbage"
	case Overflow:
		return "Overflow"
	case FinishedCmdResponse:
		return "FinishedCmdResponse"
	case FinishedDrResponse:
		return "FinishedDrResponse"
	default:
		return fmt.Sprintf("CmdState(%d)", int(c))
	}
}

// Terminal reports whether the parse cycle ended with this outcome
func (c CmdState) Terminal() bool {
	return c != Parsing
}
