package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/mumodem/internal/parser"
)

// Packet is one data frame received over the air
type Packet struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	ReceivedAt time.Time `gorm:"index;not null" json:"received_at"`
	Channel    uint8     `json:"channel"`
	Length     int       `json:"length"`
	Payload    []byte    `json:"payload"`
	RSSI       int       `json:"rssi"`
	HasRSSI    bool      `json:"has_rssi"`
	Route      string    `gorm:"size:64" json:"route,omitempty"` // comma separated hex node IDs
}

// TableName specifies the table name for GORM
func (Packet) TableName() string {
	return "packets"
}

// NewPacket copies a received frame into a storable record
func NewPacket(frame *parser.RadioDataFrame, channel uint8, at time.Time) Packet {
	p := Packet{
		ReceivedAt: at,
		Channel:    channel,
		Length:     len(frame.Payload),
		Payload:    append([]byte(nil), frame.Payload...),
		RSSI:       frame.RSSI,
		HasRSSI:    frame.HasRSSI,
	}
	if len(frame.Route) > 0 {
		nodes := make([]string, len(frame.Route))
		for i, n := range frame.Route {
			nodes[i] = fmt.Sprintf("%02X", n)
		}
		p.Route = strings.Join(nodes, ",")
	}
	return p
}

// RouteNodes parses the stored route back into node IDs
func (p Packet) RouteNodes() ([]uint8, error) {
	if p.Route == "" {
		return nil, nil
	}
	parts := strings.Split(p.Route, ",")
	nodes := make([]uint8, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("packet %d route %q: %w", p.ID, p.Route, err)
		}
		nodes = append(nodes, uint8(v))
	}
	return nodes, nil
}

// String returns a formatted string representation
func (p Packet) String() string {
	result := fmt.Sprintf("packet %d ch=0x%02X len=%d", p.ID, p.Channel, p.Length)
	if p.HasRSSI {
		result += fmt.Sprintf(" rssi=%ddBm", p.RSSI)
	}
	if p.Route != "" {
		result += " route=" + p.Route
	}
	return result
}

// RssiSample is one channel's reading from an all-channel scan
type RssiSample struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	ScanID    int64     `gorm:"index;not null" json:"scan_id"`
	ScannedAt time.Time `gorm:"index;not null" json:"scanned_at"`
	Channel   uint8     `json:"channel"`
	RSSI      int       `json:"rssi"`
}

// TableName specifies the table name for GORM
func (RssiSample) TableName() string {
	return "rssi_samples"
}
