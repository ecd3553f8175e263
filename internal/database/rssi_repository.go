package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RssiRepository stores all-channel RSSI scans
type RssiRepository struct {
	db *gorm.DB
}

// NewRssiRepository creates a new repository instance
func NewRssiRepository(db *gorm.DB) *RssiRepository {
	return &RssiRepository{db: db}
}

// SaveScan stores one scan in a single transaction. table[i] is the reading
// for channel first+i. The scan ID is returned.
func (r *RssiRepository) SaveScan(at time.Time, first uint8, table []int) (int64, error) {
	if len(table) == 0 {
		return 0, fmt.Errorf("rssi scan is empty")
	}
	scanID := at.UnixNano()
	samples := make([]RssiSample, len(table))
	for i, rssi := range table {
		samples[i] = RssiSample{
			ScanID:    scanID,
			ScannedAt: at,
			Channel:   first + uint8(i),
			RSSI:      rssi,
		}
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&samples).Error
	})
	if err != nil {
		return 0, fmt.Errorf("save rssi scan: %w", err)
	}
	return scanID, nil
}

// Latest returns the samples of the most recent scan ordered by channel,
// or nil when no scan has been stored
func (r *RssiRepository) Latest() ([]RssiSample, error) {
	var last RssiSample
	err := r.db.Order("scan_id DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var samples []RssiSample
	err = r.db.Where("scan_id = ?", last.ScanID).
		Order("channel ASC").
		Find(&samples).Error
	return samples, err
}

// DeleteOlderThan removes scans taken before cutoff
func (r *RssiRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("scanned_at < ?", cutoff).Delete(&RssiSample{})
	return result.RowsAffected, result.Error
}
