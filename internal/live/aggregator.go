package live

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// Entry is the latest state of one channel of a device.
type Entry struct {
	Payload    event.Payload `json:"payload"`
	Timestamp  time.Time     `json:"timestamp"`
	ReceivedAt time.Time     `json:"received_at"`
}

// Notifier receives state deltas. Notify must not block.
type Notifier interface {
	Notify(deviceID, channel string, payload event.Payload, ts time.Time)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(deviceID, channel string, payload event.Payload, ts time.Time)

// Notify calls f.
func (f NotifierFunc) Notify(deviceID, channel string, payload event.Payload, ts time.Time) {
	f(deviceID, channel, payload, ts)
}

// Observer receives aggregator metrics.
type Observer interface {
	EventApplied(deviceID, channel string)
	StaleDiscarded(deviceID, channel string)
	DeviceEvicted(deviceID string)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) EventApplied(string, string)   {}
func (NopObserver) StaleDiscarded(string, string) {}
func (NopObserver) DeviceEvicted(string)          {}

// Source is the consumer side of a router registration.
type Source interface {
	Next(ctx context.Context) (event.Event, error)
}

// Logger defines the logging interface used by the Aggregator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Aggregator maintains per-device latest state.
type Aggregator struct {
	mu      sync.RWMutex
	devices *simplelru.LRU[string, map[string]Entry]

	notifiers []Notifier
	observer  Observer
	logger    Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNotifier adds a state-delta notifier. May be given more than once.
func WithNotifier(n Notifier) Option {
	return func(a *Aggregator) { a.notifiers = append(a.notifiers, n) }
}

// WithObserver installs metric hooks.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// WithLogger sets the aggregator logger.
func WithLogger(l Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an Aggregator holding at most maxDevices devices.
// maxDevices <= 0 means unbounded.
func New(maxDevices int, opts ...Option) (*Aggregator, error) {
	a := &Aggregator{
		observer: NopObserver{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}

	size := maxDevices
	if size <= 0 {
		size = math.MaxInt32
	}
	lru, err := simplelru.NewLRU(size, func(deviceID string, _ map[string]Entry) {
		a.observer.DeviceEvicted(deviceID)
	})
	if err != nil {
		return nil, err
	}
	a.devices = lru
	return a, nil
}

// Apply records ev unless it is older than the stored entry for its key.
// It reports whether state changed. Equal timestamps replace.
func (a *Aggregator) Apply(ev event.Event) bool {
	entry := Entry{Payload: ev.Payload, Timestamp: ev.Timestamp, ReceivedAt: ev.ReceivedAt}

	a.mu.Lock()
	channels, ok := a.devices.Get(ev.DeviceID)
	if ok {
		if cur, exists := channels[ev.Channel]; exists && ev.Timestamp.Before(cur.Timestamp) {
			a.mu.Unlock()
			a.observer.StaleDiscarded(ev.DeviceID, ev.Channel)
			a.logger.Debug("stale event discarded", "device_id", ev.DeviceID, "channel", ev.Channel,
				"timestamp", ev.Timestamp, "stored", cur.Timestamp)
			return false
		}
	} else {
		channels = make(map[string]Entry)
		a.devices.Add(ev.DeviceID, channels)
	}
	channels[ev.Channel] = entry
	a.mu.Unlock()

	a.observer.EventApplied(ev.DeviceID, ev.Channel)
	for _, n := range a.notifiers {
		n.Notify(ev.DeviceID, ev.Channel, ev.Payload, ev.Timestamp)
	}
	return true
}

// GetState returns a copy of the stored state of deviceID keyed by channel.
func (a *Aggregator) GetState(deviceID string) (map[string]Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	channels, ok := a.devices.Peek(deviceID)
	if !ok {
		return nil, false
	}
	out := make(map[string]Entry, len(channels))
	for ch, e := range channels {
		out[ch] = e
	}
	return out, true
}

// Devices returns the known device ids in sorted order.
func (a *Aggregator) Devices() []string {
	a.mu.RLock()
	ids := a.devices.Keys()
	a.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked devices.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.devices.Len()
}

// Run drains src until ctx is cancelled or the consumer is unregistered.
func (a *Aggregator) Run(ctx context.Context, src Source) error {
	a.logger.Info("live aggregator started")
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, router.ErrEndOfStream) || ctx.Err() != nil {
				a.logger.Info("live aggregator stopped", "devices", a.Len())
				return nil
			}
			return err
		}
		a.Apply(ev)
	}
}
