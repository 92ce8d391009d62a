package sorel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

const (
	// cookieName is the session cookie issued by the hosted plugin login.
	cookieName = "nabto-session"

	loginPath = "/nabto/hosted_plugin/login/execute"

	// maxBodyBytes bounds how much of a data response is read.
	maxBodyBytes = 64 << 10

	defaultTimeout = 10 * time.Second
)

// Logger interface for dependency injection.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Session is an authenticated Sorel Connect session.
type Session struct {
	id string
}

// NewSession wraps an existing session cookie value.
func NewSession(id string) Session {
	return Session{id: id}
}

// ID returns the cookie value.
func (s Session) ID() string { return s.id }

// String keeps the cookie value out of logs.
func (s Session) String() string {
	if s.id == "" {
		return "session(none)"
	}
	return "session(redacted)"
}

// Client reads sensor and relay values from a Sorel Connect controller.
//
// Thread Safety:
//   - Safe for concurrent use; the client holds no per-cycle state.
type Client struct {
	baseURL         string
	username        string
	password        string
	sessionOverride string
	channels        []config.ChannelConfig

	httpClient *http.Client
	now        func() time.Time
	logger     Logger
}

// New creates a Client from the Sorel configuration.
//
// Every request is bounded by cfg.Timeout; the caller's context may cut it
// shorter.
func New(cfg config.SorelConfig) *Client {
	timeout := cfg.GetTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Opt-in for controllers with mismatched certificates
	}

	return &Client{
		baseURL:         cfg.URL(),
		username:        cfg.Username,
		password:        cfg.Password,
		sessionOverride: cfg.SessionID,
		channels:        cfg.Channels,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Authenticate logs in and returns a fresh session.
//
// When a session override is configured it is returned without a network
// call.
//
// Returns:
//   - Session: the authenticated session
//   - error: KindAuth if the login is rejected or yields no cookie,
//     KindFetch on network failure
func (c *Client) Authenticate(ctx context.Context) (Session, error) {
	if c.sessionOverride != "" {
		return NewSession(c.sessionOverride), nil
	}

	q := url.Values{}
	q.Set("email", c.username)
	q.Set("password", c.password)
	loginURL := c.baseURL + loginPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, http.NoBody)
	if err != nil {
		return Session{}, fault.Wrap(fault.KindFetch, "sorel.authenticate", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fault.Wrap(fault.KindFetch, "sorel.authenticate", redact(err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)) //nolint:errcheck // Drain for connection reuse

	if resp.StatusCode != http.StatusOK {
		return Session{}, fault.Wrap(fault.KindAuth, "sorel.authenticate",
			fmt.Errorf("%w: status %d", ErrLoginRejected, resp.StatusCode))
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == cookieName && cookie.Value != "" {
			c.logger.Debug("sorel login succeeded")
			return NewSession(cookie.Value), nil
		}
	}

	return Session{}, fault.Wrap(fault.KindAuth, "sorel.authenticate", ErrNoSession)
}

// ReadAll fetches every configured channel once, in configuration order.
//
// A failing channel does not stop the others. The readings that succeeded
// are returned together with the joined per-channel errors, so the caller
// can relay a partial cycle and still see what went wrong.
//
// Returns:
//   - []reading.Reading: one reading per successful channel
//   - error: nil, or errors.Join of KindAuth / KindFetch / KindParse errors
func (c *Client) ReadAll(ctx context.Context, session Session) ([]reading.Reading, error) {
	readings := make([]reading.Reading, 0, len(c.channels))
	var errs []error

	for _, ch := range c.channels {
		r, err := c.readChannel(ctx, session, ch)
		if err != nil {
			c.logger.Warn("sorel channel read failed",
				"series", ch.Series,
				"kind", fault.KindOf(err).String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Series, err))
			continue
		}
		readings = append(readings, r)
	}

	return readings, errors.Join(errs...)
}

// valueResponse is the JSON envelope returned by sensors.json and relays.json.
type valueResponse struct {
	Request  map[string]any `json:"request"`
	Response struct {
		Val *string `json:"val"`
	} `json:"response"`
}

func (c *Client) readChannel(ctx context.Context, session Session, ch config.ChannelConfig) (reading.Reading, error) {
	raw, err := c.fetchValue(ctx, session, ch)
	if err != nil {
		return reading.Reading{}, err
	}

	value, err := parseValue(ch.Kind, raw)
	if err != nil {
		return reading.Reading{}, err
	}

	return reading.New(ch.Series, c.now(), value), nil
}

func (c *Client) fetchValue(ctx context.Context, session Session, ch config.ChannelConfig) (string, error) {
	const op = "sorel.fetch"

	valueURL := fmt.Sprintf("%s/%s?id=%s", c.baseURL, ch.Endpoint, url.QueryEscape(ch.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, valueURL, http.NoBody)
	if err != nil {
		return "", fault.Wrap(fault.KindFetch, op, err)
	}
	req.AddCookie(&http.Cookie{Name: cookieName, Value: session.ID()})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fault.Wrap(fault.KindFetch, op, redact(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fault.Wrap(fault.KindAuth, op, fmt.Errorf("%w: status %d", ErrSessionRejected, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", fault.Wrap(fault.KindFetch, op, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fault.Wrap(fault.KindFetch, op, err)
	}

	var decoded valueResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fault.Wrap(fault.KindParse, op, fmt.Errorf("decoding response: %w", err))
	}
	if decoded.Response.Val == nil {
		return "", fault.Wrap(fault.KindParse, op, errors.New("response.val missing"))
	}

	return *decoded.Response.Val, nil
}

// redact strips the request URL from transport errors; the login URL
// carries the password in its query string.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
