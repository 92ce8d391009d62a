package relay

import (
	"context"

	"github.com/nerrad567/solbox-relay/internal/metrics"
	"github.com/nerrad567/solbox-relay/internal/queue"
	"github.com/nerrad567/solbox-relay/internal/reading"
	"github.com/nerrad567/solbox-relay/internal/sink"
)

// DefaultDrainLimit is the number of backlog entries attempted per cycle.
const DefaultDrainLimit = 100

// Backlog is the durable queue as seen by the coordinator.
type Backlog interface {
	Enqueue(ctx context.Context, r reading.Reading) error
	Peek(ctx context.Context, limit int) ([]queue.Entry, error)
	Ack(ctx context.Context, seq int64) error
	Len(ctx context.Context) (int, error)
}

// CycleReport summarises one delivery cycle.
type CycleReport struct {
	// Fresh is the number of readings handed in for this cycle.
	Fresh int

	// Delivered counts fresh readings the sink accepted.
	Delivered int

	// Enqueued counts fresh readings written to the queue after a failed send.
	Enqueued int

	// Drained counts backlog entries delivered and acknowledged.
	Drained int

	// DrainFailed is true when the drain stopped at an entry the sink refused.
	DrainFailed bool

	// Backlog is the queue length after the cycle.
	Backlog int
}

// Coordinator delivers one cycle's readings and drains the backlog.
//
// Fresh readings are sent first, in collection order. Any that fail go to the
// queue. The queue is then drained oldest first, up to the drain limit, and
// the drain stops at the first failure so a newer entry is never removed
// while an older one is pending.
type Coordinator struct {
	sink       sink.Sink
	backlog    Backlog
	drainLimit int

	metrics *metrics.Recorder
	logger  Logger
}

// NewCoordinator creates a Coordinator. A drainLimit of zero or less selects
// DefaultDrainLimit.
func NewCoordinator(s sink.Sink, backlog Backlog, drainLimit int) *Coordinator {
	if drainLimit <= 0 {
		drainLimit = DefaultDrainLimit
	}
	return &Coordinator{
		sink:       s,
		backlog:    backlog,
		drainLimit: drainLimit,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetMetrics sets the metrics recorder. Nil disables metrics.
func (c *Coordinator) SetMetrics(m *metrics.Recorder) {
	c.metrics = m
}

// DrainLimit returns the per-cycle backlog batch size.
func (c *Coordinator) DrainLimit() int {
	return c.drainLimit
}

// RunCycle delivers readings and then drains up to DrainLimit queued entries.
//
// Sink failures never escape: they become queue entries (fresh phase) or
// leave the entry in place (drain phase). Queue operations run detached from
// ctx cancellation so an expired watchdog cannot interrupt a half-written
// enqueue or ack; sink sends stay bound to ctx.
//
// Parameters:
//   - ctx: Bounds every sink send
//   - readings: This cycle's fresh readings in collection order
//
// Returns:
//   - CycleReport: What happened this cycle
//   - error: Any queue error, usually fault.KindQueueCorruption, or
//     queue.ErrInvalidReading for a reading that cannot be stored; the
//     relay stops on either
func (c *Coordinator) RunCycle(ctx context.Context, readings []reading.Reading) (CycleReport, error) {
	report := CycleReport{Fresh: len(readings)}
	qctx := context.WithoutCancel(ctx)

	for _, r := range readings {
		err := c.sink.Send(ctx, r)
		c.metrics.Delivery(metrics.PhaseFresh, err == nil)
		if err == nil {
			report.Delivered++
			continue
		}

		c.logger.Warn("delivery failed, requeueing",
			"sink", c.sink.Name(),
			"series", r.SeriesKey(),
			"timestamp", r.Timestamp(),
			"error", err,
		)
		if qerr := c.backlog.Enqueue(qctx, r); qerr != nil {
			return report, qerr
		}
		c.metrics.Requeued()
		report.Enqueued++
		c.logger.Info("reading requeued",
			"series", r.SeriesKey(),
			"timestamp", r.Timestamp(),
		)
	}

	entries, err := c.backlog.Peek(qctx, c.drainLimit)
	if err != nil {
		return report, err
	}

	for _, e := range entries {
		r := e.Reading
		err := c.sink.Send(ctx, r)
		c.metrics.Delivery(metrics.PhaseDrain, err == nil)
		if err != nil {
			report.DrainFailed = true
			c.logger.Warn("backlog delivery failed, drain paused",
				"sink", c.sink.Name(),
				"seq", e.Seq,
				"series", r.SeriesKey(),
				"timestamp", r.Timestamp(),
				"error", err,
			)
			break
		}

		if err := c.backlog.Ack(qctx, e.Seq); err != nil {
			return report, err
		}
		report.Drained++
		c.logger.Debug("backlog entry delivered",
			"seq", e.Seq,
			"series", r.SeriesKey(),
			"timestamp", r.Timestamp(),
		)
	}

	backlog, err := c.backlog.Len(qctx)
	if err != nil {
		return report, err
	}
	report.Backlog = backlog
	c.metrics.QueueDepth(backlog)

	return report, nil
}
