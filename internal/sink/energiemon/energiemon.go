// Package energiemon delivers readings to the energiemon HTTP ingestion API.
//
// The API stores datapoints against numeric series ids. At startup Resolve
// downloads the series catalog and maps every configured series key to its
// id; afterwards each Send is one form POST:
//
//	POST {base}/api/v1/data/datapoint/
//	Authorization: Token <token>
//	Idempotency-Key: <reading id>
//
//	time=<RFC 3339>&data=<value>&series=<id>
//
// Relay states are sent as 100 (on) and 0 (off).
package energiemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

const (
	seriesPath    = "/api/v1/data/series/"
	datapointPath = "/api/v1/data/datapoint/"

	defaultTimeout = 10 * time.Second

	// catalogRetryWindow bounds how long Resolve keeps retrying transient
	// catalog failures before giving up.
	catalogRetryWindow = 2 * time.Minute

	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// Logger interface for dependency injection.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// seriesEntry is one element of the series catalog.
type seriesEntry struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// Sink posts readings to the energiemon API.
//
// Thread Safety:
//   - Safe for concurrent use once Resolve has returned.
type Sink struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     Logger

	// newBackOff builds the retry schedule for catalog requests.
	newBackOff  func() backoff.BackOff
	retryWindow time.Duration

	mu     sync.RWMutex
	series map[string]string
}

// New creates a Sink from the energiemon configuration.
//
// The returned sink cannot deliver until Resolve has succeeded.
func New(cfg config.EnergieMonConfig) *Sink {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Sink{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     noopLogger{},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		retryWindow: catalogRetryWindow,
	}
}

// SetLogger sets the logger for the sink.
func (s *Sink) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Name identifies the sink.
func (s *Sink) Name() string { return config.SinkEnergieMon }

// Resolve downloads the series catalog and checks that every key in
// seriesKeys exists.
//
// Network errors and 5xx responses are retried with exponential backoff for
// up to two minutes. A rejected token fails immediately as KindAuth.
//
// Parameters:
//   - ctx: Cancels the retry loop
//   - seriesKeys: Keys the relay will deliver
//
// Returns:
//   - error: ErrUnknownSeries naming every missing key, or the last catalog error
func (s *Sink) Resolve(ctx context.Context, seriesKeys []string) error {
	entries, err := backoff.Retry(ctx, func() ([]seriesEntry, error) {
		return s.fetchCatalog(ctx)
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxElapsedTime(s.retryWindow),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("series catalog unavailable, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("resolving series catalog: %w", err)
	}

	ids := make(map[string]string, len(entries))
	for _, e := range entries {
		ids[e.Name] = e.ID.String()
	}

	var missing []string
	for _, key := range seriesKeys {
		if _, ok := ids[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSeries, strings.Join(missing, ", "))
	}

	s.mu.Lock()
	s.series = ids
	s.mu.Unlock()

	s.logger.Debug("series catalog resolved", "series", len(ids))
	return nil
}

// fetchCatalog performs one catalog request. Errors that retrying cannot fix
// are marked permanent.
func (s *Sink) fetchCatalog(ctx context.Context) ([]seriesEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+seriesPath, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fault.Wrap(fault.KindAuth, "energiemon.catalog",
			fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	var entries []seriesEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&entries); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding series catalog: %w", err))
	}
	return entries, nil
}

// Send posts one reading as a datapoint.
//
// Returns:
//   - error: nil once the API answered 2xx, otherwise a KindDelivery error
func (s *Sink) Send(ctx context.Context, r reading.Reading) error {
	s.mu.RLock()
	id, ok := s.series[r.SeriesKey()]
	resolved := s.series != nil
	s.mu.RUnlock()

	if !resolved {
		return fault.Wrap(fault.KindDelivery, "energiemon.send", ErrNotResolved)
	}
	if !ok {
		return fault.Wrap(fault.KindDelivery, "energiemon.send",
			fmt.Errorf("%w: %s", ErrUnknownSeries, r.SeriesKey()))
	}

	form := url.Values{}
	form.Set("time", r.Timestamp().Format(time.RFC3339Nano))
	form.Set("data", strconv.FormatFloat(r.Value().Float(), 'f', -1, 64))
	form.Set("series", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+datapointPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fault.Wrap(fault.KindDelivery, "energiemon.send", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", r.ID().String())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindDelivery, "energiemon.send", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fault.Wrap(fault.KindDelivery, "energiemon.send",
			fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}
	return nil
}

func (s *Sink) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Token "+s.token)
	}
}

