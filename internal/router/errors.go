package router

import (
	"errors"
	"fmt"
)

// Domain errors for the router.
var (
	// ErrDuplicateConsumer is returned when registering an id that is already registered.
	ErrDuplicateConsumer = errors.New("router: consumer already registered")

	// ErrConsumerDisconnected is reported through the error hook when a
	// consumer is forcibly unregistered.
	ErrConsumerDisconnected = errors.New("router: consumer disconnected")

	// ErrPublishTimeout is returned when a Block channel stayed full for the
	// whole publish timeout.
	ErrPublishTimeout = errors.New("router: publish timeout")

	// ErrNoConsumers is returned by Publish in strict mode when nobody is registered.
	ErrNoConsumers = errors.New("router: no consumers registered")

	// ErrEndOfStream is returned by Next once a closed channel has been drained.
	ErrEndOfStream = errors.New("router: end of stream")

	// ErrInvalidCapacity is returned when a channel capacity is not positive.
	ErrInvalidCapacity = errors.New("router: capacity must be greater than zero")

	// ErrInvalidPolicy is returned for an unknown overflow policy.
	ErrInvalidPolicy = errors.New("router: invalid overflow policy")

	// ErrEmptyConsumerID is returned when registering without an id.
	ErrEmptyConsumerID = errors.New("router: consumer id is required")
)

// ConsumerError scopes an error to one consumer.
type ConsumerError struct {
	ConsumerID string
	Err        error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer %s: %v", e.ConsumerID, e.Err)
}

func (e *ConsumerError) Unwrap() error { return e.Err }
