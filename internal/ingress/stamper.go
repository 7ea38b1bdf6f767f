package ingress

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// DefaultStamperKeys bounds how many (device, channel) keys a Stamper remembers.
const DefaultStamperKeys = 65536

// Stamper issues non-decreasing timestamps per (device, channel).
type Stamper struct {
	mu    sync.Mutex
	clock clock.Clock
	last  *simplelru.LRU[event.Key, time.Time]
}

// NewStamper creates a Stamper remembering at most maxKeys keys.
// maxKeys <= 0 means unbounded.
func NewStamper(c clock.Clock, maxKeys int) *Stamper {
	if c == nil {
		c = clock.Real()
	}
	if maxKeys <= 0 {
		maxKeys = math.MaxInt32
	}
	lru, err := simplelru.NewLRU[event.Key, time.Time](maxKeys, nil)
	if err != nil {
		// Only a non-positive size fails, which is excluded above.
		panic(err)
	}
	return &Stamper{clock: c, last: lru}
}

// Stamp returns the timestamp to publish for key.
//
// A zero ts is replaced with the current time. A ts earlier than the last
// timestamp issued for key is clamped to it.
func (s *Stamper) Stamp(key event.Key, ts time.Time) time.Time {
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last.Get(key); ok && ts.Before(prev) {
		ts = prev
	}
	s.last.Add(key, ts)
	return ts
}
