package database

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/mumodem/internal/parser"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(Config{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB(t *testing.T) {
	db := newTestDB(t)
	if err := db.Health(); err != nil {
		t.Errorf("Health() error = %v", err)
	}
	if err := db.Packets().HealthCheck(); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestNewPacket(t *testing.T) {
	frame := &parser.RadioDataFrame{
		Payload: []byte("hello"),
		RSSI:    -72,
		HasRSSI: true,
		Route:   []uint8{0x01, 0x2A, 0xFF},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewPacket(frame, 0x0E, at)

	if p.Length != 5 || p.Channel != 0x0E || !p.ReceivedAt.Equal(at) {
		t.Errorf("NewPacket() = %+v", p)
	}
	if p.Route != "01,2A,FF" {
		t.Errorf("Route = %q, want %q", p.Route, "01,2A,FF")
	}
	nodes, err := p.RouteNodes()
	if err != nil {
		t.Fatalf("RouteNodes() error = %v", err)
	}
	if !bytes.Equal(nodes, frame.Route) {
		t.Errorf("RouteNodes() = %v, want %v", nodes, frame.Route)
	}

	// the record must not alias the parser's buffer
	frame.Payload[0] = 'j'
	if string(p.Payload) != "hello" {
		t.Errorf("Payload = %q, changed with the frame", p.Payload)
	}
}

func TestPacketRepository(t *testing.T) {
	repo := newTestDB(t).Packets()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	packets := []Packet{
		{ReceivedAt: base, Channel: 0x07, Payload: []byte("a"), RSSI: -80, HasRSSI: true},
		{ReceivedAt: base.Add(time.Minute), Channel: 0x07, Payload: []byte("bb"), RSSI: -60, HasRSSI: true},
		{ReceivedAt: base.Add(2 * time.Minute), Channel: 0x10, Payload: []byte("ccc")},
	}
	for i := range packets {
		if err := repo.Save(&packets[i]); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if packets[i].ID == 0 {
			t.Errorf("Save() left ID unset")
		}
	}

	count, err := repo.Count()
	if err != nil || count != 3 {
		t.Errorf("Count() = %d, %v, want 3", count, err)
	}

	recent, err := repo.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || string(recent[0].Payload) != "ccc" || string(recent[1].Payload) != "bb" {
		t.Errorf("Recent(2) = %v, want ccc then bb", recent)
	}

	stats, err := repo.Statistics()
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats["total_packets"] != int64(3) {
		t.Errorf("total_packets = %v, want 3", stats["total_packets"])
	}
	if avg, ok := stats["average_rssi"].(float64); !ok || avg != -70 {
		t.Errorf("average_rssi = %v, want -70", stats["average_rssi"])
	}
	if chans, ok := stats["channels"].([]ChannelCount); !ok || len(chans) != 2 || chans[0].Channel != 0x07 {
		t.Errorf("channels = %v", stats["channels"])
	}

	deleted, err := repo.DeleteOlderThan(base.Add(90 * time.Second))
	if err != nil || deleted != 2 {
		t.Errorf("DeleteOlderThan() = %d, %v, want 2", deleted, err)
	}
	if count, _ := repo.Count(); count != 1 {
		t.Errorf("Count() after delete = %d, want 1", count)
	}
}

func TestPacketRepository_SaveNil(t *testing.T) {
	repo := newTestDB(t).Packets()
	if err := repo.Save(nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}

func TestPacketRepository_EmptyStatistics(t *testing.T) {
	stats, err := newTestDB(t).Packets().Statistics()
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if _, ok := stats["last_received"]; ok {
		t.Error("last_received set on an empty store")
	}
	if _, ok := stats["average_rssi"]; ok {
		t.Error("average_rssi set on an empty store")
	}
}

func TestRssiRepository(t *testing.T) {
	repo := newTestDB(t).Rssi()

	latest, err := repo.Latest()
	if err != nil || latest != nil {
		t.Fatalf("Latest() on empty store = %v, %v, want nil", latest, err)
	}

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := repo.SaveScan(first, 0x02, []int{-100, -101}); err != nil {
		t.Fatalf("SaveScan() error = %v", err)
	}
	second := first.Add(time.Minute)
	scanID, err := repo.SaveScan(second, 0x02, []int{-90, -91, -92})
	if err != nil {
		t.Fatalf("SaveScan() error = %v", err)
	}

	latest, err = repo.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("Latest() returned %d samples, want 3", len(latest))
	}
	for i, s := range latest {
		if s.ScanID != scanID || s.Channel != 0x02+uint8(i) || s.RSSI != -90-i {
			t.Errorf("sample %d = %+v", i, s)
		}
	}

	if _, err := repo.SaveScan(second, 0x02, nil); err == nil {
		t.Error("SaveScan() with no readings should fail")
	}

	deleted, err := repo.DeleteOlderThan(second)
	if err != nil || deleted != 2 {
		t.Errorf("DeleteOlderThan() = %d, %v, want 2", deleted, err)
	}
}
