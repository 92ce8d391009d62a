package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the component checks of one health request.
const healthCheckTimeout = 5 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// QueueResponse is the body of GET /api/v1/queue.
type QueueResponse struct {
	Depth            int        `json:"depth"`
	OldestEnqueuedAt *time.Time `json:"oldest_enqueued_at"`
	DrainLimit       int        `json:"drain_limit"`
}

// handleHealth reports "ok" when every component is healthy and "degraded"
// with 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Components: make(map[string]string, len(s.components)),
	}
	status := http.StatusOK

	for _, c := range s.components {
		if err := c.Checker.HealthCheck(ctx); err != nil {
			resp.Components[c.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[c.Name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleQueue reports the backlog depth and the age of its head.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	depth, err := s.queue.Len(ctx)
	if err != nil {
		s.logger.Error("queue status: length failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "queue unavailable")
		return
	}

	resp := QueueResponse{Depth: depth, DrainLimit: s.drainLimit}

	oldest, ok, err := s.queue.Oldest(ctx)
	if err != nil {
		s.logger.Error("queue status: oldest failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "queue unavailable")
		return
	}
	if ok {
		resp.OldestEnqueuedAt = &oldest
	}

	writeJSON(w, http.StatusOK, resp)
}
