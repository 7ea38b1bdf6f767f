package deadletter

import "errors"

// Domain errors for dead letter operations.
var (
	// ErrNotFound is returned when a dead letter ID does not exist.
	ErrNotFound = errors.New("deadletter: not found")

	// ErrEmptyBatch is returned when asked to record a batch with no events.
	ErrEmptyBatch = errors.New("deadletter: empty batch")
)
