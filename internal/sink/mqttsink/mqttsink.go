// Package mqttsink publishes readings to an MQTT broker.
//
// Each reading becomes one message on {topic_prefix}/{series_key}:
//
//	{"value": 42, "time": "2026-10-18T14:30:00+02:00"}
//
// Relay states are published as 100 (on) and 0 (off). Messages are sent at
// QoS 1 or 2 so that a nil error from Send means the broker acknowledged it.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

// ErrQoSTooLow indicates a QoS that gives no delivery acknowledgement.
var ErrQoSTooLow = errors.New("mqttsink: qos must be 1 or 2")

// Publisher is the part of the MQTT client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// message is the JSON payload of one reading.
type message struct {
	Value float64 `json:"value"`
	Time  string  `json:"time"`
}

// Sink publishes readings through a Publisher.
type Sink struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// New creates a Sink publishing under topics at the given QoS.
//
// Returns:
//   - *Sink: ready to send
//   - error: ErrQoSTooLow if qos is not 1 or 2
func New(pub Publisher, topics mqtt.Topics, qos int) (*Sink, error) {
	if qos < 1 || qos > 2 {
		return nil, fmt.Errorf("%w: got %d", ErrQoSTooLow, qos)
	}
	return &Sink{pub: pub, topics: topics, qos: byte(qos)}, nil
}

// Name identifies the sink.
func (s *Sink) Name() string { return config.SinkMQTT }

// Send publishes one reading and waits for the broker acknowledgement.
//
// Returns:
//   - error: nil once acknowledged, otherwise a KindDelivery error
func (s *Sink) Send(ctx context.Context, r reading.Reading) error {
	payload, err := json.Marshal(message{
		Value: r.Value().Float(),
		Time:  r.Timestamp().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fault.Wrap(fault.KindDelivery, "mqttsink.send", err)
	}

	if err := s.pub.Publish(ctx, s.topics.Reading(r.SeriesKey()), payload, s.qos, false); err != nil {
		return fault.Wrap(fault.KindDelivery, "mqttsink.send", err)
	}
	return nil
}
