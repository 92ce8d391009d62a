package influxsink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

// influxServer accepts pings and records line-protocol writes.
func influxServer(t *testing.T, writeStatus *atomic.Int64) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var lines []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			defer mu.Unlock()
			if code := int(writeStatus.Load()); code != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"code":"unavailable","message":"down"}`))
				return
			}
			lines = append(lines, strings.TrimSpace(string(body)))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}

func connect(t *testing.T, url string) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(config.InfluxDBConfig{
		URL:         url,
		Token:       "tok",
		Org:         "home",
		Bucket:      "solar",
		Measurement: "solbox",
		Timeout:     2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSend(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusNoContent)
	srv, lines := influxServer(t, &status)
	s := New(connect(t, srv.URL), "")

	ts := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Send(context.Background(), reading.New("temp_kollektor", ts, reading.Number(42, "C"))))
	require.NoError(t, s.Send(context.Background(), reading.New("pumpe_status", ts, reading.State(true))))

	assert.Equal(t, []string{
		"solbox,series=temp_kollektor value=42 1792324800000000000",
		"solbox,series=pumpe_status value=100 1792324800000000000",
	}, lines())
}

func TestSend_ServerErrorIsDeliveryFault(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusNoContent)
	srv, lines := influxServer(t, &status)
	s := New(connect(t, srv.URL), "solbox")

	status.Store(http.StatusBadRequest)
	err := s.Send(context.Background(), reading.New("temp_kollektor", time.Now(), reading.Number(1, "C")))

	require.ErrorIs(t, err, influxdb.ErrWriteFailed)
	assert.True(t, fault.Is(err, fault.KindDelivery))
	assert.Empty(t, lines())
}

func TestName(t *testing.T) {
	assert.Equal(t, "influxdb", New(nil, "").Name())
}
