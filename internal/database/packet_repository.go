package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PacketRepository provides database operations for received packets
type PacketRepository struct {
	db *gorm.DB
}

// NewPacketRepository creates a new repository instance
func NewPacketRepository(db *gorm.DB) *PacketRepository {
	return &PacketRepository{db: db}
}

// Save stores one packet and fills in its ID
func (r *PacketRepository) Save(packet *Packet) error {
	if packet == nil {
		return fmt.Errorf("packet cannot be nil")
	}
	if packet.ReceivedAt.IsZero() {
		packet.ReceivedAt = time.Now()
	}
	packet.Length = len(packet.Payload)
	return r.db.Create(packet).Error
}

// Recent returns up to limit packets, newest first
func (r *PacketRepository) Recent(limit int) ([]Packet, error) {
	var packets []Packet
	err := r.db.Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&packets).Error
	return packets, err
}

// Count returns the total number of stored packets
func (r *PacketRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Packet{}).Count(&count).Error
	return count, err
}

// DeleteOlderThan removes packets received before cutoff
func (r *PacketRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("received_at < ?", cutoff).Delete(&Packet{})
	return result.RowsAffected, result.Error
}

// ChannelCount is the number of packets heard on one channel
type ChannelCount struct {
	Channel uint8 `json:"channel"`
	Count   int   `json:"count"`
}

// Statistics returns basic packet statistics
func (r *PacketRepository) Statistics() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	stats["total_packets"] = count

	var latest Packet
	err = r.db.Order("received_at DESC, id DESC").First(&latest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		stats["last_received"] = latest.ReceivedAt
	}

	var avg struct {
		Rssi *float64
	}
	err = r.db.Model(&Packet{}).
		Select("AVG(rssi) AS rssi").
		Where("has_rssi = ?", true).
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	if avg.Rssi != nil {
		stats["average_rssi"] = *avg.Rssi
	}

	var channels []ChannelCount
	err = r.db.Model(&Packet{}).
		Select("channel, COUNT(*) as count").
		Group("channel").
		Order("count DESC").
		Find(&channels).Error
	if err != nil {
		return nil, err
	}
	stats["channels"] = channels

	return stats, nil
}

// HealthCheck verifies the repository is working correctly
func (r *PacketRepository) HealthCheck() error {
	var count int64
	return r.db.Model(&Packet{}).Count(&count).Error
}
