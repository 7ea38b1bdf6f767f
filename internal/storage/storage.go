package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// Writer persists batches of events.
type Writer interface {
	// WriteBatch writes all events or fails as a whole. Implementations
	// must not retain or modify the slice.
	WriteBatch(ctx context.Context, events []event.Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, events []event.Event) error

// WriteBatch calls f.
func (f WriterFunc) WriteBatch(ctx context.Context, events []event.Event) error {
	return f(ctx, events)
}

// Class is the retry classification of a write failure.
type Class int

// Failure classes.
const (
	ClassNone Class = iota
	ClassTransient
	ClassPermanent
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// ClassifiedError carries a failure class alongside its cause.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s storage failure: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Is lets errors.Is match the class sentinels.
func (e *ClassifiedError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Class == ClassTransient
	case ErrPermanent:
		return e.Class == ClassPermanent
	}
	return false
}

// Class sentinels for errors.Is checks.
var (
	ErrTransient = errors.New("storage: transient failure")
	ErrPermanent = errors.New("storage: permanent failure")
)

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassPermanent, Err: err}
}

// Classify returns the class of err.
//
// Marked errors keep their class. Unmarked errors, including network
// failures and context deadlines, are transient.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

// ClassifyHTTPStatus maps an HTTP status from a write endpoint to a class.
// 408, 429 and 5xx are transient; other 4xx are permanent.
func ClassifyHTTPStatus(status int) Class {
	switch {
	case status >= 200 && status < 300:
		return ClassNone
	case status == 408 || status == 429:
		return ClassTransient
	case status >= 400 && status < 500:
		return ClassPermanent
	default:
		return ClassTransient
	}
}

// Mark wraps err with the class for status. Success statuses return err unchanged.
func Mark(status int, err error) error {
	switch ClassifyHTTPStatus(status) {
	case ClassPermanent:
		return Permanent(err)
	case ClassTransient:
		return Transient(err)
	default:
		return err
	}
}
