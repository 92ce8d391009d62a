package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/logging"
	"github.com/nerrad567/solbox-relay/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every component whose health is reported.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueueStatus is the read-only view of the durable queue.
type QueueStatus interface {
	HealthChecker
	Len(ctx context.Context) (int, error)
	Oldest(ctx context.Context) (enqueuedAt time.Time, ok bool, err error)
}

// Component is a named health check shown on /api/v1/health.
type Component struct {
	Name    string
	Checker HealthChecker
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Queue      QueueStatus
	Metrics    *metrics.Recorder
	Components []Component // Optional: sink connections and the like
	DrainLimit int
	Version    string
}

// Server is the status HTTP server.
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	queue      QueueStatus
	metrics    *metrics.Recorder
	components []Component
	drainLimit int
	version    string
	server     *http.Server
	addr       net.Addr
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, queue)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}

	components := append([]Component{{Name: "queue", Checker: deps.Queue}}, deps.Components...)

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		queue:      deps.Queue,
		metrics:    deps.Metrics,
		components: components,
		drainLimit: deps.DrainLimit,
		version:    deps.Version,
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens before Start returns, so a port already in use is reported
// here rather than logged later.
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.addr = ln.Addr()

	s.logger.Info("API server starting", "address", s.addr.String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
