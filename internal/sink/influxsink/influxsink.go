// Package influxsink writes readings to an InfluxDB v2 bucket.
//
// Each reading is one point: the configured measurement, tag series set to
// the series key, field value, and the reading's own timestamp. Relay states
// are written as 100 (on) and 0 (off) so every series has a float field.
package influxsink

import (
	"context"
	"time"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

// Writer is the part of the InfluxDB client the sink needs.
type Writer interface {
	WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) error
}

// Sink writes readings through a Writer.
type Sink struct {
	w           Writer
	measurement string
}

// New creates a Sink. An empty measurement defers to the writer's default.
func New(w Writer, measurement string) *Sink {
	return &Sink{w: w, measurement: measurement}
}

// Name identifies the sink.
func (s *Sink) Name() string { return config.SinkInfluxDB }

// Send writes one point and returns once the server accepted it.
//
// Returns:
//   - error: nil on success, otherwise a KindDelivery error
func (s *Sink) Send(ctx context.Context, r reading.Reading) error {
	err := s.w.WritePoint(ctx, s.measurement,
		map[string]string{"series": r.SeriesKey()},
		map[string]any{"value": r.Value().Float()},
		r.Timestamp())
	if err != nil {
		return fault.Wrap(fault.KindDelivery, "influxsink.send", err)
	}
	return nil
}
