package api

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/time/rate"
)

// deviceLimiter holds one token bucket per device id. The set of buckets is
// bounded by an LRU so a flood of distinct ids cannot grow it without limit;
// an evicted device starts again with a full bucket.
type deviceLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *simplelru.LRU[string, *rate.Limiter]
}

func newDeviceLimiter(perMinute, burst, maxDevices int) *deviceLimiter {
	if burst <= 0 {
		burst = 1
	}
	lru, err := simplelru.NewLRU[string, *rate.Limiter](maxDevices, nil)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &deviceLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		buckets: lru,
	}
}

// allow reports whether deviceID may publish at now.
func (l *deviceLimiter) allow(deviceID string, now time.Time) bool {
	l.mu.Lock()
	lim, ok := l.buckets.Get(deviceID)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(deviceID, lim)
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}
