package router

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// outcome is the result of one enqueue attempt.
type outcome int

const (
	accepted     outcome = iota // queued without loss
	evicted                     // queued, oldest event dropped
	rejected                    // incoming event dropped
	overflowed                  // full under DisconnectConsumer
	full                        // full under Block, caller must wait
	closedOut                   // channel closed
	timedOut                    // Block wait expired
)

// Channel is a bounded FIFO of events between the router and one consumer.
//
// The router is the only writer; the owning consumer is the only reader.
// Close makes further enqueues fail and lets the reader drain what is
// buffered before Next reports ErrEndOfStream.
type Channel struct {
	mu     sync.Mutex
	buf    []event.Event
	head   int
	size   int
	policy OverflowPolicy
	closed bool

	// ready holds a token whenever an enqueue happened since the reader
	// last looked.
	ready chan struct{}
	// space is closed and replaced when room frees up for a waiting writer.
	space        chan struct{}
	spaceWaiting bool
	done         chan struct{}

	enqueued uint64
	dequeued uint64
	dropped  uint64
}

func newChannel(capacity int, policy OverflowPolicy) *Channel {
	return &Channel{
		buf:    make([]event.Event, capacity),
		policy: policy,
		ready:  make(chan struct{}, 1),
		space:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// tryEnqueue applies the overflow policy without blocking. When the
// result is full the returned channel is closed as soon as room frees up.
func (c *Channel) tryEnqueue(ev event.Event) (outcome, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return closedOut, nil
	}

	res := accepted
	if c.size == len(c.buf) {
		switch c.policy {
		case DropOldest:
			c.buf[c.head] = event.Event{}
			c.head = (c.head + 1) % len(c.buf)
			c.size--
			c.dropped++
			res = evicted
		case DropNewest:
			c.dropped++
			return rejected, nil
		case DisconnectConsumer:
			return overflowed, nil
		default:
			c.spaceWaiting = true
			return full, c.space
		}
	}

	c.buf[(c.head+c.size)%len(c.buf)] = ev
	c.size++
	c.enqueued++

	select {
	case c.ready <- struct{}{}:
	default:
	}
	return res, nil
}

// enqueueWait retries a Block enqueue until it succeeds, the channel
// closes, ctx ends or expired fires.
func (c *Channel) enqueueWait(ctx context.Context, ev event.Event, space <-chan struct{}, expired <-chan time.Time) outcome {
	for {
		select {
		case <-space:
		case <-c.done:
			return closedOut
		case <-ctx.Done():
			return timedOut
		case <-expired:
			return timedOut
		}

		var res outcome
		res, space = c.tryEnqueue(ev)
		if res != full {
			return res
		}
	}
}

// TryNext removes and returns the oldest event without blocking.
func (c *Channel) TryNext() (event.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size == 0 {
		return event.Event{}, false
	}

	ev := c.buf[c.head]
	c.buf[c.head] = event.Event{}
	c.head = (c.head + 1) % len(c.buf)
	c.size--
	c.dequeued++

	if c.spaceWaiting {
		close(c.space)
		c.space = make(chan struct{})
		c.spaceWaiting = false
	}
	return ev, true
}

// Next blocks until an event is available, ctx ends or the channel is
// closed and drained, in which case it returns ErrEndOfStream.
func (c *Channel) Next(ctx context.Context) (event.Event, error) {
	for {
		if ev, ok := c.TryNext(); ok {
			return ev, nil
		}
		if c.isClosed() {
			// Enqueue is refused once closed, so one more look is final.
			if ev, ok := c.TryNext(); ok {
				return ev, nil
			}
			return event.Event{}, ErrEndOfStream
		}

		select {
		case <-c.ready:
		case <-c.done:
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}

// Ready returns a channel that receives a token after new events arrive.
// A token may be stale; callers must always follow up with TryNext.
func (c *Channel) Ready() <-chan struct{} { return c.ready }

// Done is closed when the channel is closed.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Len returns the number of queued events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int { return len(c.buf) }

// Close stops accepting events and wakes any blocked reader or writer.
// It is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ChannelStats is a point-in-time view of a channel's counters.
type ChannelStats struct {
	Capacity int    `json:"capacity"`
	Depth    int    `json:"depth"`
	Enqueued uint64 `json:"enqueued"`
	Dequeued uint64 `json:"dequeued"`
	Dropped  uint64 `json:"dropped"`
	Closed   bool   `json:"closed"`
}

// Stats returns the channel counters.
func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelStats{
		Capacity: len(c.buf),
		Depth:    c.size,
		Enqueued: c.enqueued,
		Dequeued: c.dequeued,
		Dropped:  c.dropped,
		Closed:   c.closed,
	}
}
