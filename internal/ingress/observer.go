package ingress

import (
	"errors"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// Rejection reasons reported to Observer.Rejected.
const (
	ReasonMalformed    = "malformed"
	ReasonTooLarge     = "too_large"
	ReasonEncoding     = "unsupported_encoding"
	ReasonInvalid      = "invalid_event"
	ReasonTimeout      = "publish_timeout"
	ReasonNoConsumers  = "no_consumers"
	ReasonUnauthorized = "unauthorized"
	ReasonRateLimited  = "rate_limited"
	ReasonTopic        = "invalid_topic"
	ReasonInternal     = "internal"
)

// Observer receives per-adapter ingress metrics.
type Observer interface {
	Accepted(adapter string)
	Rejected(adapter, reason string)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) Accepted(string)         {}
func (NopObserver) Rejected(string, string) {}

// Reason maps a decode or publish error to its rejection reason.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return ReasonTooLarge
	case errors.Is(err, ErrUnsupportedEncoding):
		return ReasonEncoding
	case errors.Is(err, ErrMalformedPayload):
		return ReasonMalformed
	case errors.Is(err, event.ErrEmptyDeviceID),
		errors.Is(err, event.ErrEmptyChannel),
		errors.Is(err, event.ErrZeroTimestamp),
		errors.Is(err, event.ErrDuplicateField),
		errors.Is(err, event.ErrEmptyFieldName),
		errors.Is(err, event.ErrUnsupportedValue):
		return ReasonInvalid
	case errors.Is(err, router.ErrPublishTimeout):
		return ReasonTimeout
	case errors.Is(err, router.ErrNoConsumers):
		return ReasonNoConsumers
	default:
		return ReasonInternal
	}
}
