// Package api provides the read-only status HTTP server for the solbox relay.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Endpoints:
//
//	GET /api/v1/health  {"status":"ok"|"degraded","version":..,"components":{..}}
//	GET /api/v1/queue   {"depth":n,"oldest_enqueued_at":..,"drain_limit":N}
//	GET /metrics        Prometheus exposition of the relay registry
//
// Health answers 503 when any component check fails, so a container
// orchestrator can restart a relay whose queue file went bad.
//
// The server binds to 127.0.0.1 by default and has no authentication; it
// exposes counts and timestamps only, never readings or credentials.
package api
