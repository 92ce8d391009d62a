// Package mqtt provides MQTT publishing for the solbox relay.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Acknowledged publishing bounded by a context
//   - A retained online/offline status with Last Will and Testament
//   - Connection health monitoring
//
// # Topics
//
// All topics live under one configurable prefix (default "solbox"):
//
//	solbox/<series_key>   one message per reading
//	solbox/status         retained {"status":"online"|"offline",...}
//
// The broker publishes the offline status itself when the relay drops off
// without disconnecting cleanly.
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) whenever the broker is not on localhost
//   - Credentials are passed via SOLBOX_MQTT_USERNAME / SOLBOX_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().Reading("temp_kollektor")
//	err = client.Publish(ctx, topic, []byte(`{"value":42}`), 1, false)
package mqtt
