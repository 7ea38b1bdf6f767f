package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// FakeClock is a manually advanced Clock for tests.
//
// Time stands still until Advance is called. Timers whose deadline falls
// at or before the new time fire in deadline order, each with its own
// deadline as the fire time.
type FakeClock struct {
	*clockwork.FakeClock
}

// NewFake returns a FakeClock set to start.
func NewFake(start time.Time) *FakeClock {
	return &FakeClock{FakeClock: clockwork.NewFakeClockAt(start)}
}

// WaitForTimers blocks until at least n timers are armed.
func (c *FakeClock) WaitForTimers(n int) {
	_ = c.BlockUntilContext(context.Background(), n)
}

// WaitForTimersContext is WaitForTimers bounded by ctx.
func (c *FakeClock) WaitForTimersContext(ctx context.Context, n int) error {
	return c.BlockUntilContext(ctx, n)
}
