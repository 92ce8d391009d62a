package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/influxdb"
)

// fakeInflux answers the two endpoints the client uses.
type fakeInflux struct {
	mu          sync.Mutex
	writeStatus int
	lines       []string
	auth        string
	query       string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = r.Header.Get("Authorization")
		f.query = r.URL.RawQuery
		if f.writeStatus != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.writeStatus)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`))
			return
		}
		f.lines = append(f.lines, strings.TrimSpace(string(body)))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	f := &fakeInflux{writeStatus: http.StatusNoContent}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return f, config.InfluxDBConfig{
		URL:         srv.URL,
		Token:       "test-token",
		Org:         "home",
		Bucket:      "solar",
		Measurement: "solbox",
		Timeout:     2,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if client.Measurement() != "solbox" {
		t.Errorf("Measurement() = %q, want solbox", client.Measurement())
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, cfg := startFake(t)
	cfg.URL = "http://127.0.0.1:1" // nothing listens here

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoint(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ts := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	err = client.WritePoint(context.Background(), "",
		map[string]string{"series": "temp_kollektor"},
		map[string]any{"value": 42.0},
		ts)
	if err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	if len(fake.lines) != 1 {
		t.Fatalf("server received %d writes, want 1", len(fake.lines))
	}
	want := "solbox,series=temp_kollektor value=42 1792324800000000000"
	if fake.lines[0] != want {
		t.Errorf("line = %q, want %q", fake.lines[0], want)
	}
	if fake.auth != "Token test-token" {
		t.Errorf("Authorization = %q", fake.auth)
	}
	if !strings.Contains(fake.query, "bucket=solar") || !strings.Contains(fake.query, "org=home") {
		t.Errorf("query = %q, want bucket and org", fake.query)
	}
}

func TestWritePoint_Rejected(t *testing.T) {
	fake, cfg := startFake(t)
	fake.writeStatus = http.StatusBadRequest

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	err = client.WritePoint(context.Background(), "solbox",
		map[string]string{"series": "x"}, map[string]any{"value": 1.0}, time.Now())
	if !errors.Is(err, influxdb.ErrWriteFailed) {
		t.Errorf("WritePoint() error = %v, want ErrWriteFailed", err)
	}
}

func TestWritePoint_AfterClose(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	err = client.WritePoint(context.Background(), "", nil, map[string]any{"value": 1.0}, time.Now())
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WritePoint() error = %v, want ErrNotConnected", err)
	}
}
