// Package clock abstracts wall-clock time so that timeouts, batch
// deadlines and retry backoff can be driven deterministically in tests.
//
// Production code uses Real(). Tests use NewFake and move time forward
// explicitly with Advance, synchronising with WaitForTimers to avoid racing
// the goroutine that arms a timer. Both are backed by clockwork.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of the time package used by the telemetry core.
// Every clockwork.Clock satisfies it.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a timer that fires once after d.
	// A timer with d <= 0 fires immediately.
	NewTimer(d time.Duration) Timer
}

// Timer is a single-shot timer. Chan has capacity 1.
type Timer = clockwork.Timer

// Real returns a Clock backed by the time package.
func Real() Clock { return clockwork.NewRealClock() }
