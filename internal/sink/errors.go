package sink

import (
	"errors"
	"fmt"
)

// Domain errors for the sink driver.
var (
	// ErrRetriesExhausted is wrapped by FatalError when a batch could not
	// be written within the retry budget.
	ErrRetriesExhausted = errors.New("sink: retries exhausted")

	// ErrNotAccepting is returned by Machine.Add while a batch is in flight.
	ErrNotAccepting = errors.New("sink: not accepting events")

	// ErrInvalidConfig is returned for unusable batch or backoff settings.
	ErrInvalidConfig = errors.New("sink: invalid configuration")
)

// FatalError reports a consumer-level failure that stopped the driver.
type FatalError struct {
	ConsumerID string
	BatchSize  int
	Attempts   int
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("sink %s: batch of %d lost after %d attempts: %v",
		e.ConsumerID, e.BatchSize, e.Attempts, e.Err)
}

// Unwrap exposes both ErrRetriesExhausted and the last write error.
func (e *FatalError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}
