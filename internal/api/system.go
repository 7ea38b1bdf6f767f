package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-telemetry/internal/deadletter"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// HealthResponse reports the state of the service and its dependencies.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
	WSClients  int               `json:"ws_clients"`
}

// handleRoot answers liveness probes that only check the listener.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleHealth runs every registered component check. Any failure turns the
// response into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	if len(names) > 0 {
		resp.Components = make(map[string]string, len(names))
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleListConsumers returns the router registration set with queue stats.
func (s *Server) handleListConsumers(w http.ResponseWriter, _ *http.Request) {
	stats := []router.ConsumerStats{}
	if s.consumers != nil {
		stats = append(stats, s.consumers.Stats()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consumers": stats,
		"count":     len(stats),
	})
}

// handleListDeadLetters returns recent dead-lettered batches, newest first.
// Query parameters: consumer, reason, limit, offset.
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.deadLetters == nil {
		writeNotFound(w, "dead letters are not configured")
		return
	}

	q := r.URL.Query()
	filter := deadletter.Filter{
		ConsumerID: q.Get("consumer"),
		Reason:     q.Get("reason"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.deadLetters.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing dead letters failed", "error", err)
		writeInternalError(w, "failed to list dead letters")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetDeadLetter returns the events of one dead-lettered batch.
func (s *Server) handleGetDeadLetter(w http.ResponseWriter, r *http.Request) {
	if s.deadLetters == nil {
		writeNotFound(w, "dead letters are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	events, err := s.deadLetters.Events(r.Context(), id)
	if err != nil {
		if errors.Is(err, deadletter.ErrNotFound) {
			writeNotFound(w, "dead letter not found")
			return
		}
		s.logger.Error("reading dead letter failed", "id", id, "error", err)
		writeInternalError(w, "failed to read dead letter")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"events": events,
	})
}

// intParam parses an optional non-negative integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
