package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingress"
)

// Ingress defaults.
const (
	// ModelIDField is the payload field carrying the ?model_id= parameter.
	ModelIDField = "model_id"

	// retryAfter is the hint sent with 503 and 429 responses.
	retryAfter = time.Second
)

// PublishResponse is returned for an accepted event.
type PublishResponse struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Channel      string    `json:"channel"`
	Timestamp    time.Time `json:"timestamp"`
	Delivered    int       `json:"delivered"`
	Dropped      int       `json:"dropped"`
	Disconnected int       `json:"disconnected,omitempty"`
}

// handlePublish accepts one reading on POST /publish/{device_id}/{channel}.
// An optional model_id query parameter is appended to the payload unless
// the body already carries that field.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var extra []event.Field
	if model := r.URL.Query().Get("model_id"); model != "" {
		extra = append(extra, event.Field{Name: ModelIDField, Value: event.String(model)})
	}
	s.ingest(w, r, chi.URLParam(r, "device_id"), chi.URLParam(r, "channel"), extra)
}

// handleTelemetry accepts one reading on PUT /telemetry/{tenant}/{device}.
// The tenant is the channel the reading is published on.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, chi.URLParam(r, "device"), chi.URLParam(r, "tenant"), nil)
}

// ingest turns the request body into a canonical event and publishes it.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, deviceID, channel string, extra []event.Field) {
	if s.limiter != nil && !s.limiter.allow(deviceID, s.clock.Now()) {
		s.observer.Rejected(AdapterName, ingress.ReasonRateLimited)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded for device")
		return
	}

	limit := s.ingressCfg.MaxPayloadSize
	body := http.MaxBytesReader(w, r.Body, limit)
	data, err := ingress.Decompress(r.Header.Get("Content-Encoding"), body, limit)
	if err != nil {
		s.writeIngressError(w, r, err)
		return
	}

	payload, err := ingress.DecodePayload(r.Header.Get("Content-Type"), data)
	if err != nil {
		s.writeIngressError(w, r, err)
		return
	}
	for _, f := range extra {
		if _, exists := payload.Get(f.Name); exists {
			continue
		}
		if payload, err = payload.With(f); err != nil {
			s.writeIngressError(w, r, err)
			return
		}
	}

	ev := event.Event{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Channel:  channel,
		Payload:  payload,
	}
	ev.Timestamp = s.stamper.Stamp(ev.Key(), time.Time{})

	res, err := s.publisher.Publish(r.Context(), ev)
	if err != nil {
		s.writeIngressError(w, r, err)
		return
	}

	s.observer.Accepted(AdapterName)
	writeJSON(w, http.StatusAccepted, PublishResponse{
		ID:           ev.ID,
		DeviceID:     ev.DeviceID,
		Channel:      ev.Channel,
		Timestamp:    ev.Timestamp,
		Delivered:    len(res.Delivered),
		Dropped:      len(res.Dropped),
		Disconnected: len(res.Disconnected),
	})
}

// writeIngressError maps decode, validation and publish failures to HTTP
// statuses and records the rejection.
func (s *Server) writeIngressError(w http.ResponseWriter, r *http.Request, err error) {
	reason := ingress.Reason(err)
	s.observer.Rejected(AdapterName, reason)

	switch reason {
	case ingress.ReasonTooLarge:
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "payload exceeds maximum size")
	case ingress.ReasonEncoding:
		writeError(w, http.StatusUnsupportedMediaType, ErrCodeUnsupportedEncoding, err.Error())
	case ingress.ReasonMalformed:
		writeBadRequest(w, err.Error())
	case ingress.ReasonInvalid:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case ingress.ReasonTimeout:
		s.logger.Warn("publish timed out on a blocking consumer",
			"error", err,
			"request_id", requestID(r),
		)
		writeUnavailable(w, retryAfter, "a consumer is not keeping up; retry later")
	case ingress.ReasonNoConsumers:
		writeUnavailable(w, retryAfter, "no consumers registered")
	default:
		s.logger.Error("publish failed",
			"error", err,
			"request_id", requestID(r),
		)
		writeInternalError(w, "failed to publish event")
	}
}
