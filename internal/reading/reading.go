// Package reading defines the measurement value that flows through the relay.
//
// A Reading is created once at collection time and never modified. The
// queue, the coordinator and every sink pass it by value.
package reading

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Numeric renderings of a relay state for sinks that only accept numbers.
const (
	StateOnValue  = 100.0
	StateOffValue = 0.0
)

// Value is either a number with a unit (sensor) or an on/off state (relay).
type Value struct {
	number  float64
	unit    string
	on      bool
	isState bool
}

// Number returns a sensor value.
func Number(v float64, unit string) Value {
	return Value{number: v, unit: unit}
}

// State returns a relay value.
func State(on bool) Value {
	return Value{on: on, isState: true}
}

// IsState reports whether v is a relay state rather than a number.
func (v Value) IsState() bool { return v.isState }

// On returns the relay state. It is false for numeric values.
func (v Value) On() bool { return v.isState && v.on }

// Unit returns the sensor unit, empty for states.
func (v Value) Unit() string { return v.unit }

// Float returns the numeric value. States render as 100 (on) or 0 (off).
func (v Value) Float() float64 {
	if !v.isState {
		return v.number
	}
	if v.on {
		return StateOnValue
	}
	return StateOffValue
}

// String renders the value the way the source reported it.
func (v Value) String() string {
	if v.isState {
		if v.on {
			return "ON"
		}
		return "OFF"
	}
	return strconv.FormatFloat(v.number, 'f', -1, 64) + v.unit
}

// Reading is one timestamped sensor or relay measurement.
type Reading struct {
	id        uuid.UUID
	seriesKey string
	timestamp time.Time
	value     Value
}

// New creates a Reading with a fresh random ID.
func New(seriesKey string, timestamp time.Time, value Value) Reading {
	return Reading{
		id:        uuid.New(),
		seriesKey: seriesKey,
		timestamp: timestamp,
		value:     value,
	}
}

// Restore rebuilds a Reading from persisted fields, keeping its original ID.
func Restore(id uuid.UUID, seriesKey string, timestamp time.Time, value Value) Reading {
	return Reading{
		id:        id,
		seriesKey: seriesKey,
		timestamp: timestamp,
		value:     value,
	}
}

// ID uniquely identifies the reading across retries.
func (r Reading) ID() uuid.UUID { return r.id }

// SeriesKey identifies the metric or topic the reading belongs to.
func (r Reading) SeriesKey() string { return r.seriesKey }

// Timestamp is the observation time assigned at collection.
func (r Reading) Timestamp() time.Time { return r.timestamp }

// Value is the measured value.
func (r Reading) Value() Value { return r.value }

func (r Reading) String() string {
	return fmt.Sprintf("%s=%s@%s", r.seriesKey, r.value, r.timestamp.Format(time.RFC3339))
}
