package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/database"
	"github.com/dbehnke/mumodem/internal/modem"
)

type fakeStatus struct{ status Status }

func (f fakeStatus) Status() Status { return f.status }

type fakePackets struct {
	packets   []database.Packet
	err       error
	lastLimit int
}

func (f *fakePackets) Recent(limit int) ([]database.Packet, error) {
	f.lastLimit = limit
	return f.packets, f.err
}

func (f *fakePackets) Statistics() (map[string]interface{}, error) {
	return map[string]interface{}{"total_packets": len(f.packets)}, f.err
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := NewServer(Config{}, nil, nil, nil, zerolog.Nop())
	w := get(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "mumodemd" {
		t.Errorf("GET /health body = %v", body)
	}
}

func TestMetrics(t *testing.T) {
	s := NewServer(Config{}, nil, nil, nil, zerolog.Nop())
	w := get(t, s, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mumodem_") {
		t.Error("GET /metrics does not expose mumodem collectors")
	}
}

func TestStatus(t *testing.T) {
	status := Status{
		Mode:           "FskCmd",
		FrequencyModel: "429MHz",
		Channel:        0x0E,
		CommandPending: true,
		Stats:          modem.Stats{Issued: 3, Resolved: 2},
	}
	s := NewServer(Config{}, fakeStatus{status}, nil, nil, zerolog.Nop())

	w := get(t, s, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", w.Code)
	}
	var got Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Mode != "FskCmd" || got.Channel != 0x0E || !got.CommandPending || got.Stats.Issued != 3 {
		t.Errorf("GET /status = %+v", got)
	}
}

func TestStatus_NoModem(t *testing.T) {
	s := NewServer(Config{}, nil, nil, nil, zerolog.Nop())
	if w := get(t, s, "/status"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /status = %d, want 503", w.Code)
	}
}

func TestPackets(t *testing.T) {
	store := &fakePackets{packets: []database.Packet{{ID: 1, Payload: []byte("hi")}}}
	s := NewServer(Config{}, nil, store, nil, zerolog.Nop())

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantLimit int
	}{
		{"default limit", "/packets", http.StatusOK, defaultPacketLimit},
		{"explicit limit", "/packets?limit=5", http.StatusOK, 5},
		{"capped limit", "/packets?limit=100000", http.StatusOK, maxPacketLimit},
		{"zero limit", "/packets?limit=0", http.StatusBadRequest, 0},
		{"junk limit", "/packets?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.lastLimit = 0
			w := get(t, s, tt.path)
			if w.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.wantCode)
			}
			if store.lastLimit != tt.wantLimit {
				t.Errorf("Recent() limit = %d, want %d", store.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestPackets_StoreError(t *testing.T) {
	s := NewServer(Config{}, nil, &fakePackets{err: errors.New("disk gone")}, nil, zerolog.Nop())
	if w := get(t, s, "/packets"); w.Code != http.StatusInternalServerError {
		t.Errorf("GET /packets = %d, want 500", w.Code)
	}
}

func TestStoresDisabled(t *testing.T) {
	s := NewServer(Config{}, nil, nil, nil, zerolog.Nop())
	tests := []struct {
		path string
		want string
	}{
		{"/packets", "packet store disabled"},
		{"/rssi", "rssi store disabled"},
	}
	for _, tt := range tests {
		w := get(t, s, tt.path)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", tt.path, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s: decode body: %v", tt.path, err)
		}
		if body["error"] != tt.want {
			t.Errorf("GET %s error = %q, want %q", tt.path, body["error"], tt.want)
		}
	}
}

func TestRssi(t *testing.T) {
	db, err := database.NewDB(database.Config{Path: filepath.Join(t.TempDir(), "api.db")}, nil)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	defer db.Close()

	s := NewServer(Config{}, nil, db.Packets(), db.Rssi(), zerolog.Nop())
	if w := get(t, s, "/rssi"); w.Code != http.StatusNotFound {
		t.Errorf("GET /rssi before any scan = %d, want 404", w.Code)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := db.Rssi().SaveScan(at, 0x07, []int{-100, -95}); err != nil {
		t.Fatalf("SaveScan() error = %v", err)
	}

	w := get(t, s, "/rssi")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /rssi = %d, want 200", w.Code)
	}
	var body struct {
		Samples []database.RssiSample `json:"samples"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Samples) != 2 || body.Samples[1].Channel != 0x08 || body.Samples[1].RSSI != -95 {
		t.Errorf("GET /rssi samples = %+v", body.Samples)
	}
}

func TestCors(t *testing.T) {
	s := NewServer(Config{CorsOrigins: []string{"http://example.test/"}}, nil, nil, nil, zerolog.Nop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.test")
	s.Router().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.test" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://example.test")
	}
}
