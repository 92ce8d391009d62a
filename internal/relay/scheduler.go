package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/metrics"
	"github.com/nerrad567/solbox-relay/internal/reading"
	"github.com/nerrad567/solbox-relay/internal/source/sorel"
)

// Source produces the readings for one cycle.
type Source interface {
	Authenticate(ctx context.Context) (sorel.Session, error)
	ReadAll(ctx context.Context, session sorel.Session) ([]reading.Reading, error)
}

// Scheduler runs a cycle immediately and then once per interval.
//
// Each cycle runs under its own watchdog deadline and is detached from the
// Run context, so a shutdown request lets the running cycle finish and is
// acted on before the next one starts.
type Scheduler struct {
	source       Source
	coordinator  *Coordinator
	interval     time.Duration
	cycleTimeout time.Duration

	metrics *metrics.Recorder
	logger  Logger
}

// NewScheduler creates a Scheduler.
//
// Parameters:
//   - source: Where readings come from
//   - coordinator: Delivers each cycle's readings
//   - interval: Time between cycle starts
//   - cycleTimeout: Watchdog deadline for one cycle; should be below interval
func NewScheduler(source Source, coordinator *Coordinator, interval, cycleTimeout time.Duration) *Scheduler {
	return &Scheduler{
		source:       source,
		coordinator:  coordinator,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetMetrics sets the metrics recorder. Nil disables metrics.
func (s *Scheduler) SetMetrics(m *metrics.Recorder) {
	s.metrics = m
}

// Run drives cycles until ctx is cancelled or a fatal error occurs.
//
// Fetch and Parse errors are logged and the relay carries on. Auth errors and
// queue corruption end Run.
//
// Returns:
//   - error: nil after a shutdown request, otherwise the fatal error
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("relay started", "interval", s.interval, "cycle_timeout", s.cycleTimeout)

	for {
		if ctx.Err() != nil {
			s.logger.Info("relay stopped")
			return nil
		}

		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("relay stopping on fatal error", "error", err, "kind", fault.KindOf(err).String())
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info("relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one collect-deliver-drain cycle under the watchdog.
//
// Readings collected before a source error are still delivered. The backlog
// is drained even when collection failed entirely.
//
// Returns:
//   - error: Only fatal errors (fault.IsFatal); everything else is logged
func (s *Scheduler) RunCycle(parent context.Context) error {
	start := time.Now()
	defer func() { s.metrics.CycleDuration(time.Since(start)) }()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cycleTimeout)
	defer cancel()

	readings, collectErr := s.collect(ctx)
	s.metrics.ReadingsCollected(len(readings))
	if collectErr != nil {
		s.metrics.SourceError(collectErr)
		s.logger.Warn("collection incomplete",
			"collected", len(readings),
			"kind", fault.KindOf(collectErr).String(),
			"error", collectErr,
		)
	}

	report, err := s.coordinator.RunCycle(ctx, readings)
	if err != nil {
		return fmt.Errorf("delivering readings: %w", err)
	}

	s.logger.Info("cycle complete",
		"fresh", report.Fresh,
		"delivered", report.Delivered,
		"enqueued", report.Enqueued,
		"drained", report.Drained,
		"drain_failed", report.DrainFailed,
		"backlog", report.Backlog,
		"duration", time.Since(start),
	)

	if fault.IsFatal(collectErr) {
		return fmt.Errorf("collecting readings: %w", collectErr)
	}
	return nil
}

// collect authenticates and reads every channel with a fresh session.
func (s *Scheduler) collect(ctx context.Context) ([]reading.Reading, error) {
	session, err := s.source.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return s.source.ReadAll(ctx, session)
}
