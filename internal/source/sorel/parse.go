package sorel

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/nerrad567/solbox-relay/internal/fault"
	"github.com/nerrad567/solbox-relay/internal/infrastructure/config"
	"github.com/nerrad567/solbox-relay/internal/reading"
)

var (
	// sensorPattern matches "42C", "55°C", "-3°C": leading integer, then unit.
	sensorPattern = regexp.MustCompile(`^(-?\d+)(.*)$`)

	// relayPattern matches "1_ON", "0_OFF": numeric prefix, underscore, state.
	relayPattern = regexp.MustCompile(`^(\d+)_(.+)$`)
)

// ParseSensor decodes a sensor value such as "42C" into 42 with unit "C".
func ParseSensor(raw string) (reading.Value, error) {
	m := sensorPattern.FindStringSubmatch(raw)
	if m == nil {
		return reading.Value{}, malformed("sensor", raw)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return reading.Value{}, malformed("sensor", raw)
	}

	return reading.Number(float64(n), m[2]), nil
}

// ParseRelay decodes a relay value such as "1_ON" into an on/off state.
// Any state other than ON or OFF is rejected.
func ParseRelay(raw string) (reading.Value, error) {
	m := relayPattern.FindStringSubmatch(raw)
	if m == nil {
		return reading.Value{}, malformed("relay", raw)
	}

	switch m[2] {
	case "ON":
		return reading.State(true), nil
	case "OFF":
		return reading.State(false), nil
	default:
		return reading.Value{}, malformed("relay", raw)
	}
}

// parseValue dispatches on the channel kind.
func parseValue(kind, raw string) (reading.Value, error) {
	switch kind {
	case config.ChannelSensor:
		return ParseSensor(raw)
	case config.ChannelRelay:
		return ParseRelay(raw)
	default:
		return reading.Value{}, fault.Wrapf(fault.KindParse, "sorel.parse", "unknown channel kind %q", kind)
	}
}

func malformed(kind, raw string) error {
	return fault.Wrap(fault.KindParse, "sorel.parse", fmt.Errorf("%w: %s %q", ErrMalformedValue, kind, raw))
}
