package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint writes one point and waits for the server to accept it.
//
// Parameters:
//   - ctx: Bounds the HTTP request
//   - measurement: The measurement name; empty selects the configured one
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//   - timestamp: The observation time of the point
//
// Returns:
//   - error: ErrNotConnected after Close, or an error wrapping ErrWriteFailed
//
// Example:
//
//	err := client.WritePoint(ctx, "",
//	    map[string]string{"series": "temp_kollektor"},
//	    map[string]any{"value": 42.0},
//	    observedAt)
func (c *Client) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if measurement == "" {
		measurement = c.cfg.Measurement
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	if err := c.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}
