package event

import "errors"

// Domain errors for event construction and validation.
var (
	// ErrEmptyDeviceID is returned when an event has no device identifier.
	ErrEmptyDeviceID = errors.New("event: device_id is required")

	// ErrEmptyChannel is returned when an event has no channel name.
	ErrEmptyChannel = errors.New("event: channel is required")

	// ErrZeroTimestamp is returned when an event carries no timestamp.
	ErrZeroTimestamp = errors.New("event: timestamp is required")

	// ErrDuplicateField is returned when a payload repeats a field name.
	ErrDuplicateField = errors.New("event: duplicate payload field")

	// ErrEmptyFieldName is returned when a payload field has no name.
	ErrEmptyFieldName = errors.New("event: empty payload field name")

	// ErrUnsupportedValue is returned when a decoded value is not a scalar.
	ErrUnsupportedValue = errors.New("event: unsupported value type")
)
