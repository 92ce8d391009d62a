// Package metrics exposes relay activity as Prometheus metrics.
//
// A Recorder owns its own registry, so tests and multiple relays in one
// process never collide on the default one. Every method is nil-safe: a nil
// *Recorder records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/solbox-relay/internal/fault"
)

const namespace = "solbox"

// Delivery phases.
const (
	PhaseFresh = "fresh"
	PhaseDrain = "drain"
)

// Delivery results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Recorder holds the relay's collectors.
type Recorder struct {
	registry *prometheus.Registry

	readingsCollected prometheus.Counter
	deliveries        *prometheus.CounterVec
	requeued          prometheus.Counter
	queueDepth        prometheus.Gauge
	cycleDuration     prometheus.Histogram
	sourceErrors      *prometheus.CounterVec
}

// New creates a Recorder with all collectors registered, plus the Go runtime
// and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		readingsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_collected_total",
			Help:      "Readings decoded from the source.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Sink send attempts by phase (fresh, drain) and result (ok, failed).",
		}, []string{"phase", "result"}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requeued_total",
			Help:      "Fresh readings written to the durable queue after a failed send.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Readings waiting in the durable queue at the end of the last cycle.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one poll-deliver-drain cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Source failures by error kind.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		r.readingsCollected,
		r.deliveries,
		r.requeued,
		r.queueDepth,
		r.cycleDuration,
		r.sourceErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registry returns the registry holding the relay's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ReadingsCollected adds n decoded readings.
func (r *Recorder) ReadingsCollected(n int) {
	if r == nil {
		return
	}
	r.readingsCollected.Add(float64(n))
}

// Delivery counts one send attempt.
func (r *Recorder) Delivery(phase string, ok bool) {
	if r == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultFailed
	}
	r.deliveries.WithLabelValues(phase, result).Inc()
}

// Requeued counts one reading written to the queue.
func (r *Recorder) Requeued() {
	if r == nil {
		return
	}
	r.requeued.Inc()
}

// QueueDepth sets the current backlog.
func (r *Recorder) QueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}

// CycleDuration observes the duration of one cycle.
func (r *Recorder) CycleDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(d.Seconds())
}

// SourceError counts one source failure under its fault kind.
func (r *Recorder) SourceError(err error) {
	if r == nil || err == nil {
		return
	}
	r.sourceErrors.WithLabelValues(fault.KindOf(err).String()).Inc()
}
