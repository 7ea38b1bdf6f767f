package mqttingress

import "errors"

// Domain errors for the MQTT adapter.
var (
	// ErrInvalidTopic is returned for a message outside the telemetry topic layout.
	ErrInvalidTopic = errors.New("mqttingress: topic is not {prefix}/{device_id}/{channel}")

	// ErrNotStarted is returned by Stop before Start succeeded.
	ErrNotStarted = errors.New("mqttingress: adapter not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("mqttingress: adapter already started")
)
