// Package sink defines the downstream a relay delivers readings to.
//
// Three implementations live in subpackages:
//
//	energiemon  HTTP ingestion API (form POST per reading)
//	mqttsink    one MQTT message per reading
//	influxsink  one InfluxDB point per reading
//
// Delivery is at-least-once: a reading whose Send failed, or whose outcome
// is unknown, is sent again on a later cycle. Implementations must tolerate
// duplicates.
package sink

import (
	"context"

	"github.com/nerrad567/solbox-relay/internal/reading"
)

// Sink delivers readings to one downstream system.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Send delivers one reading. A nil error means the downstream confirmed
	// it. Any failure is returned as a fault.KindDelivery error.
	Send(ctx context.Context, r reading.Reading) error
}

// Func adapts a plain function to the Sink interface.
type Func struct {
	SinkName string
	SendFunc func(ctx context.Context, r reading.Reading) error
}

// Name returns the configured name.
func (f Func) Name() string { return f.SinkName }

// Send calls SendFunc.
func (f Func) Send(ctx context.Context, r reading.Reading) error {
	return f.SendFunc(ctx, r)
}
