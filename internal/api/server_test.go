package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/logging"
	"github.com/nerrad567/solbox-relay/internal/metrics"
	"github.com/nerrad567/solbox-relay/internal/queue"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

// fakeQueue is a QueueStatus with fixed answers.
type fakeQueue struct {
	depth     int
	oldest    time.Time
	hasOldest bool
	err       error
	healthErr error
}

func (f *fakeQueue) HealthCheck(context.Context) error { return f.healthErr }
func (f *fakeQueue) Len(context.Context) (int, error)  { return f.depth, f.err }
func (f *fakeQueue) Oldest(context.Context) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.err
}

// checkFunc adapts a function to HealthChecker.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server around q without starting a listener.
func testServer(t *testing.T, q QueueStatus, components ...Component) *Server {
	t.Helper()

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:     testLogger(),
		Queue:      q,
		Metrics:    metrics.New(),
		Components: components,
		DrainLimit: 100,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Queue: &fakeQueue{}}},
		{"no queue", Deps{Logger: testLogger()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth_OK(t *testing.T) {
	srv := testServer(t, &fakeQueue{}, Component{Name: "mqtt", Checker: checkFunc(func(context.Context) error { return nil })})

	rec := get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "ok" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
	if body.Components["queue"] != "ok" || body.Components["mqtt"] != "ok" {
		t.Errorf("components = %v", body.Components)
	}
}

func TestHealth_DegradedWhenQueueUnhealthy(t *testing.T) {
	srv := testServer(t, &fakeQueue{healthErr: errors.New("queue: corrupt")})

	rec := get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if !strings.Contains(body.Components["queue"], "corrupt") {
		t.Errorf("queue component = %q", body.Components["queue"])
	}
}

func TestHealth_DegradedWhenSinkDisconnected(t *testing.T) {
	srv := testServer(t, &fakeQueue{},
		Component{Name: "mqtt", Checker: checkFunc(func(context.Context) error { return errors.New("not connected") })})

	rec := get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// =============================================================================
// Queue Tests
// =============================================================================

func TestQueue_RealQueue(t *testing.T) {
	ctx := context.Background()
	q, err := queue.Open(ctx, config.QueueConfig{Path: filepath.Join(t.TempDir(), "queue.dat"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("queue.Open() error = %v", err)
	}
	defer q.Close()

	srv := testServer(t, q)

	rec := get(t, srv, "/api/v1/queue")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var empty map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&empty); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if empty["depth"] != float64(0) || empty["oldest_enqueued_at"] != nil || empty["drain_limit"] != float64(100) {
		t.Errorf("empty queue body = %v", empty)
	}

	for i := range 3 {
		r := reading.New("temp_kollektor", time.Now(), reading.Number(float64(i), "C"))
		if err := q.Enqueue(ctx, r); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	rec = get(t, srv, "/api/v1/queue")
	var body QueueResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Depth != 3 {
		t.Errorf("depth = %d, want 3", body.Depth)
	}
	if body.OldestEnqueuedAt == nil || time.Since(*body.OldestEnqueuedAt) > time.Minute {
		t.Errorf("oldest_enqueued_at = %v", body.OldestEnqueuedAt)
	}
}

func TestQueue_Error(t *testing.T) {
	srv := testServer(t, &fakeQueue{err: queue.ErrCorrupt})

	rec := get(t, srv, "/api/v1/queue")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "corrupt") {
		t.Error("internal error detail leaked to client")
	}
}

// =============================================================================
// Routing and Middleware Tests
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, &fakeQueue{})
	srv.metrics.QueueDepth(5)

	rec := get(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "solbox_queue_depth 5") {
		t.Error("queue depth gauge missing from /metrics")
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t, &fakeQueue{})

	rec := get(t, srv, "/api/v1/devices")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t, &fakeQueue{})

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/queue", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	srv := testServer(t, &fakeQueue{})

	rec := get(t, srv, "/api/v1/health")
	if id := rec.Header().Get("X-Request-ID"); id == "" {
		t.Errorf("generated X-Request-ID = %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want echoed abc123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, &fakeQueue{})
	handler := srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStartClose(t *testing.T) {
	srv := testServer(t, &fakeQueue{})

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", srv.Addr()))
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain only
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	first := testServer(t, &fakeQueue{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close()

	second := testServer(t, &fakeQueue{})
	second.cfg.Port = first.Addr().(*net.TCPAddr).Port
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port error = nil, want error")
	}
}

func TestCloseNotStarted(t *testing.T) {
	if err := testServer(t, &fakeQueue{}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
