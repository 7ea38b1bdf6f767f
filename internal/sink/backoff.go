package sink

import (
	"fmt"
	"math"
	"time"
)

// Backoff configures exponential retry delays.
//
// The n-th retry (0-based) waits min(Max, Initial*Multiplier^n*(1+j)) where
// j is drawn from [0, Jitter). Jitter must be smaller than Multiplier-1 so
// successive delays strictly increase until they reach Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
	MaxRetries int
}

// DefaultBackoff returns the backoff used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
		MaxRetries: 8,
	}
}

// Validate checks the backoff parameters.
func (b Backoff) Validate() error {
	switch {
	case b.Initial <= 0:
		return fmt.Errorf("%w: backoff initial delay must be positive", ErrInvalidConfig)
	case b.Max < b.Initial:
		return fmt.Errorf("%w: backoff max delay must be >= initial delay", ErrInvalidConfig)
	case b.Multiplier <= 1:
		return fmt.Errorf("%w: backoff multiplier must be > 1", ErrInvalidConfig)
	case b.Jitter < 0 || b.Jitter >= b.Multiplier-1:
		return fmt.Errorf("%w: backoff jitter must be in [0, multiplier-1)", ErrInvalidConfig)
	case b.MaxRetries < 0:
		return fmt.Errorf("%w: backoff max retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Delay returns the wait before retry number attempt (0-based).
// rnd must be in [0, 1).
func (b Backoff) Delay(attempt int, rnd float64) time.Duration {
	base := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	d := base * (1 + b.Jitter*rnd)
	if d >= float64(b.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return b.Max
	}
	return time.Duration(d)
}
