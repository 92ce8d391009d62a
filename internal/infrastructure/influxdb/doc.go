// Package influxdb provides InfluxDB v2 connectivity for the solbox relay.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, synchronous point writes and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WritePoint(ctx, "",
//	    map[string]string{"series": "temp_kollektor"},
//	    map[string]any{"value": 42.0},
//	    observedAt)
//
// # Error Handling
//
// Writes use the blocking write API: the error returned from WritePoint is
// the server's verdict for that point. Nothing is buffered or retried here;
// retrying is the durable queue's job.
package influxdb
