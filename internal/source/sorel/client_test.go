package sorel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
)

// fakeController emulates the hosted plugin endpoints.
type fakeController struct {
	loginStatus int
	setCookie   bool
	values      map[string]string // "sensors.json?id=1" -> raw value
	statuses    map[string]int    // same key -> forced status
	logins      atomic.Int32
}

func newFakeController() *fakeController {
	return &fakeController{
		loginStatus: http.StatusOK,
		setCookie:   true,
		values: map[string]string{
			"sensors.json?id=1": "42C",
			"sensors.json?id=2": "55°C",
			"sensors.json?id=3": "61°C",
			"relays.json?id=1":  "1_ON",
		},
		statuses: map[string]int{},
	}
}

func (f *fakeController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == loginPath {
		f.logins.Add(1)
		if r.Method != http.MethodPost ||
			r.URL.Query().Get("email") != "user@example.com" ||
			r.URL.Query().Get("password") != "p&ss word" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.setCookie {
			http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "sess-123"})
		}
		w.WriteHeader(f.loginStatus)
		return
	}

	cookie, err := r.Cookie(cookieName)
	if err != nil || (cookie.Value != "sess-123" && cookie.Value != "override") {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/") + "?id=" + r.URL.Query().Get("id")
	if status, ok := f.statuses[key]; ok {
		w.WriteHeader(status)
		return
	}
	raw, ok := f.values[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"request":{"id":%q},"response":{"val":%q}}`, r.URL.Query().Get("id"), raw)
}

func testClient(t *testing.T, f *fakeController, mutate func(*config.SorelConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := config.SorelConfig{
		BaseURL:  srv.URL,
		Username: "user@example.com",
		Password: "p&ss word",
		Timeout:  2,
		Channels: []config.ChannelConfig{
			{Series: "temp_kollektor", Kind: config.ChannelSensor, ID: "1", Endpoint: "sensors.json"},
			{Series: "temp_boiler_unten", Kind: config.ChannelSensor, ID: "2", Endpoint: "sensors.json"},
			{Series: "temp_boiler_oben", Kind: config.ChannelSensor, ID: "3", Endpoint: "sensors.json"},
			{Series: "pumpe_status", Kind: config.ChannelRelay, ID: "1", Endpoint: "relays.json"},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	c := New(cfg)
	c.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.Local) }
	return c
}

func TestAuthenticate(t *testing.T) {
	f := newFakeController()
	c := testClient(t, f, nil)

	session, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-123", session.ID())
	assert.NotContains(t, session.String(), "sess-123")
}

func TestAuthenticate_Rejected(t *testing.T) {
	f := newFakeController()
	c := testClient(t, f, func(cfg *config.SorelConfig) { cfg.Password = "wrong" })

	_, err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrLoginRejected)
	assert.Equal(t, fault.KindAuth, fault.KindOf(err))
	assert.True(t, fault.IsFatal(err))
}

func TestAuthenticate_NoCookie(t *testing.T) {
	f := newFakeController()
	f.setCookie = false
	c := testClient(t, f, nil)

	_, err := c.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, fault.KindAuth, fault.KindOf(err))
}

func TestAuthenticate_NetworkErrorIsTransientAndRedacted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(config.SorelConfig{BaseURL: base, Username: "u", Password: "hunter2", Timeout: 1})

	_, err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.KindFetch, fault.KindOf(err))
	assert.False(t, fault.IsFatal(err))
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestAuthenticate_SessionOverrideSkipsLogin(t *testing.T) {
	f := newFakeController()
	c := testClient(t, f, func(cfg *config.SorelConfig) { cfg.SessionID = "override" })

	session, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "override", session.ID())
	assert.Zero(t, f.logins.Load())

	readings, err := c.ReadAll(context.Background(), session)
	require.NoError(t, err)
	assert.Len(t, readings, 4)
}

func TestReadAll(t *testing.T) {
	f := newFakeController()
	c := testClient(t, f, nil)
	ctx := context.Background()

	session, err := c.Authenticate(ctx)
	require.NoError(t, err)

	readings, err := c.ReadAll(ctx, session)
	require.NoError(t, err)
	require.Len(t, readings, 4)

	assert.Equal(t, "temp_kollektor", readings[0].SeriesKey())
	assert.Equal(t, 42.0, readings[0].Value().Float())
	assert.Equal(t, "C", readings[0].Value().Unit())

	assert.Equal(t, "temp_boiler_unten", readings[1].SeriesKey())
	assert.Equal(t, 55.0, readings[1].Value().Float())

	assert.Equal(t, "pumpe_status", readings[3].SeriesKey())
	assert.True(t, readings[3].Value().On())
	assert.Equal(t, 100.0, readings[3].Value().Float())

	for _, r := range readings {
		assert.True(t, c.now().Equal(r.Timestamp()), "timestamp assigned at collection")
	}
}

func TestReadAll_PartialFailure(t *testing.T) {
	f := newFakeController()
	f.statuses["sensors.json?id=2"] = http.StatusBadGateway
	f.values["relays.json?id=1"] = "1_AUTO"
	c := testClient(t, f, nil)
	ctx := context.Background()

	session, err := c.Authenticate(ctx)
	require.NoError(t, err)

	readings, err := c.ReadAll(ctx, session)
	require.Error(t, err)
	require.Len(t, readings, 2, "healthy channels are still returned")
	assert.Equal(t, "temp_kollektor", readings[0].SeriesKey())
	assert.Equal(t, "temp_boiler_oben", readings[1].SeriesKey())

	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.True(t, errors.Is(err, ErrMalformedValue))
	assert.True(t, fault.Is(err, fault.KindFetch))
	assert.True(t, fault.Is(err, fault.KindParse))
	assert.False(t, fault.IsFatal(err))
	assert.Contains(t, err.Error(), "temp_boiler_unten")
}

func TestReadAll_SessionRejectedIsFatal(t *testing.T) {
	f := newFakeController()
	c := testClient(t, f, nil)

	_, err := c.ReadAll(context.Background(), NewSession("expired"))
	require.ErrorIs(t, err, ErrSessionRejected)
	assert.True(t, fault.IsFatal(err))
}

func TestReadAll_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "1":
			fmt.Fprint(w, `<html>maintenance</html>`)
		default:
			fmt.Fprint(w, `{"request":{},"response":{}}`)
		}
	}))
	defer srv.Close()

	c := New(config.SorelConfig{
		BaseURL: srv.URL,
		Channels: []config.ChannelConfig{
			{Series: "a", Kind: config.ChannelSensor, ID: "1", Endpoint: "sensors.json"},
			{Series: "b", Kind: config.ChannelSensor, ID: "2", Endpoint: "sensors.json"},
		},
	})

	readings, err := c.ReadAll(context.Background(), NewSession("s"))
	assert.Empty(t, readings)
	require.Error(t, err)
	assert.Equal(t, fault.KindParse, fault.KindOf(err))
}

func TestReadAll_ContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := New(config.SorelConfig{
		BaseURL:  srv.URL,
		Timeout:  30,
		Channels: []config.ChannelConfig{{Series: "a", Kind: config.ChannelSensor, ID: "1", Endpoint: "sensors.json"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ReadAll(ctx, NewSession("s"))
	require.Error(t, err)
	assert.Equal(t, fault.KindFetch, fault.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}
