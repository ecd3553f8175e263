package parser

import (
	"fmt"
	"strings"

	"github.com/dbehnke/mumodem/internal/protocol"
)

// Framing describes how the bytes after a two-letter prefix are delimited
type Framing int

const (
	FramingParam         Framing = iota // *XX=value[/option]
	FramingRaw                          // *XX<raw string>
	FramingDataFrame                    // *DR=LL<payload>[/R route]
	FramingDataFrameRSSI                // *DS=RRLL<payload>
)

func (f Framing) String() string {
	switch f {
	case FramingParam:
		return "param"
	case FramingRaw:
		return "raw"
	case FramingDataFrame:
		return "data"
	case FramingDataFrameRSSI:
		return "data_rssi"
	default:
		return fmt.Sprintf("Framing(%d)", int(f))
	}
}

// ParseFraming is the inverse of String
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "param":
		return FramingParam, nil
	case "raw":
		return FramingRaw, nil
	case "data":
		return FramingDataFrame, nil
	case "data_rssi":
		return FramingDataFrameRSSI, nil
	}
	return FramingParam, fmt.Errorf("unknown framing %q", s)
}

// Family is one response family keyed by its two-letter prefix
type Family struct {
	Prefix  string
	Kind    protocol.ResponseKind
	Framing Framing
}

// FamilyTable maps two-letter prefixes to response families
type FamilyTable struct {
	families map[string]Family
}

// NewFamilyTable creates an empty table
func NewFamilyTable() *FamilyTable {
	return &FamilyTable{families: make(map[string]Family)}
}

// DefaultFamilies returns the MU command set response families
func DefaultFamilies() *FamilyTable {
	t := NewFamilyTable()
	defaults := []Family{
		{protocol.MU_FAMILY_CHANNEL, protocol.KindChannel, FramingParam},
		{protocol.MU_FAMILY_SAVE, protocol.KindSaveValue, FramingParam},
		{protocol.MU_FAMILY_SERIAL, protocol.KindSerialNumber, FramingParam},
		{protocol.MU_FAMILY_TRANSMIT_ACK, protocol.KindDtAck, FramingParam},
		{protocol.MU_FAMILY_RSSI_CURRENT, protocol.KindRssiCurrentChannel, FramingParam},
		{protocol.MU_FAMILY_RSSI_ALL, protocol.KindRssiAllChannels, FramingParam},
		{protocol.MU_FAMILY_SHOW_MODE, protocol.KindShowMode, FramingRaw},
		{protocol.MU_FAMILY_DATA, protocol.KindDataReceived, FramingDataFrame},
		{protocol.MU_FAMILY_DATA_RSSI, protocol.KindDataReceived, FramingDataFrameRSSI},
	}
	generic := []string{
		protocol.MU_FAMILY_INFO,
		protocol.MU_FAMILY_GROUP_ID,
		protocol.MU_FAMILY_DESTINATION_ID,
		protocol.MU_FAMILY_EQUIPMENT_ID,
		protocol.MU_FAMILY_USER_ID,
		protocol.MU_FAMILY_POWER,
		protocol.MU_FAMILY_BAUD_RATE,
		protocol.MU_FAMILY_ROUTE_INFO,
		protocol.MU_FAMILY_AUTO_REPLY,
		protocol.MU_FAMILY_ROUTE_INFO_ADD,
		protocol.MU_FAMILY_ADD_RSSI,
		protocol.MU_FAMILY_SOFT_RESET,
		protocol.MU_FAMILY_CARRIER_SENSE,
	}
	for _, prefix := range generic {
		defaults = append(defaults, Family{prefix, protocol.KindGenericResponse, FramingParam})
	}
	for _, f := range defaults {
		t.families[f.Prefix] = f
	}
	return t
}

// Register adds or replaces a family
func (t *FamilyTable) Register(f Family) error {
	if len(f.Prefix) != 2 || !isUpper(f.Prefix[0]) || !isUpper(f.Prefix[1]) {
		return fmt.Errorf("family prefix %q must be two uppercase letters", f.Prefix)
	}
	switch f.Kind {
	case protocol.KindIdle, protocol.KindParseError, protocol.KindTimeout, protocol.KindAny:
		return fmt.Errorf("family %s: kind %s cannot be produced from a line", f.Prefix, f.Kind)
	}
	if f.Kind == protocol.KindDataReceived {
		if f.Framing != FramingDataFrame && f.Framing != FramingDataFrameRSSI {
			return fmt.Errorf("family %s: DataReceived needs data framing", f.Prefix)
		}
	} else if f.Framing == FramingDataFrame || f.Framing == FramingDataFrameRSSI {
		return fmt.Errorf("family %s: data framing requires kind DataReceived", f.Prefix)
	}
	t.families[f.Prefix] = f
	return nil
}

// Lookup returns the family for a prefix and whether it is registered
func (t *FamilyTable) Lookup(prefix string) (Family, bool) {
	f, ok := t.families[prefix]
	if !ok {
		return Family{Prefix: prefix, Kind: protocol.KindParseError, Framing: FramingParam}, false
	}
	return f, true
}

// Len returns the number of registered families
func (t *FamilyTable) Len() int {
	return len(t.families)
}

// FrameLayout is the binary data-frame layout for one frequency model
type FrameLayout struct {
	AddressWidth int // bytes discarded between the size byte and the payload
}

// Layouts holds the per-model binary frame layouts
type Layouts map[protocol.FrequencyModel]FrameLayout

// DefaultLayouts returns the address widths used by MU-3 and MU-4 units
func DefaultLayouts() Layouts {
	return Layouts{
		protocol.MHz429:  {AddressWidth: protocol.MU_429_ADDRESS_WIDTH},
		protocol.MHz1216: {AddressWidth: protocol.MU_1216_ADDRESS_WIDTH},
	}
}

// For returns the layout of a model, zero-width when unset
func (l Layouts) For(model protocol.FrequencyModel) FrameLayout {
	return l[model]
}
