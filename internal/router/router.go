package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// Logger defines the logging interface used by the Router.
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

// ErrorHook observes consumer-scoped failures such as forced disconnects.
// It is called synchronously from the goroutine that detected the failure
// and must not call back into Publish.
type ErrorHook func(consumerID string, err error)

// PublishResult lists, per outcome, the consumers an event was routed to.
type PublishResult struct {
	// Delivered consumers queued the event (including DropOldest evictions
	// of an older event).
	Delivered []string
	// Dropped consumers discarded the event under DropNewest.
	Dropped []string
	// Disconnected consumers were closed before or while the event was
	// offered, including DisconnectConsumer overflow.
	Disconnected []string
	// TimedOut consumers stayed full for the whole Block wait.
	TimedOut []string
}

// Router multiplexes events to registered consumers.
type Router struct {
	mu        sync.RWMutex
	consumers map[string]*registration

	clock          clock.Clock
	strict         bool
	publishTimeout time.Duration
	observer       Observer
	logger         Logger
	newID          func() string
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the clock used for ReceivedAt stamps and publish timeouts.
func WithClock(c clock.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// WithStrict makes Publish fail with ErrNoConsumers when nobody is registered.
func WithStrict(strict bool) Option {
	return func(r *Router) { r.strict = strict }
}

// WithPublishTimeout bounds how long Publish waits on a full Block channel.
// Zero waits until the context ends or the consumer unregisters.
func WithPublishTimeout(d time.Duration) Option {
	return func(r *Router) { r.publishTimeout = d }
}

// WithObserver installs metric hooks.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithLogger sets the router logger.
func WithLogger(l Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithIDGenerator replaces the event id generator.
func WithIDGenerator(f func() string) Option {
	return func(r *Router) { r.newID = f }
}

// New creates a Router with no consumers.
func New(opts ...Option) *Router {
	r := &Router{
		consumers: make(map[string]*registration),
		clock:     clock.Real(),
		observer:  NopObserver{},
		logger:    noopLogger{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// registration is one consumer's entry in the registry.
type registration struct {
	id       string
	policy   OverflowPolicy
	ch       *Channel
	hook     ErrorHook
	hookOnce sync.Once
}

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

// WithErrorHook observes forced disconnection of this consumer.
func WithErrorHook(h ErrorHook) RegisterOption {
	return func(reg *registration) { reg.hook = h }
}

// Register adds a consumer with a fresh delivery channel.
//
// Parameters:
//   - id: Unique consumer identifier among registered consumers
//   - capacity: Channel capacity, must be > 0
//   - policy: Overflow policy applied when the channel is full
//
// Returns:
//   - *ConsumerHandle: Read side of the channel
//   - error: ErrDuplicateConsumer, ErrInvalidCapacity, ErrInvalidPolicy or ErrEmptyConsumerID
func (r *Router) Register(id string, capacity int, policy OverflowPolicy, opts ...RegisterOption) (*ConsumerHandle, error) {
	if id == "" {
		return nil, ErrEmptyConsumerID
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(policy))
	}

	reg := &registration{
		id:     id,
		policy: policy,
		ch:     newChannel(capacity, policy),
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	if _, exists := r.consumers[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConsumer, id)
	}
	r.consumers[id] = reg
	r.mu.Unlock()

	r.logger.Info("consumer registered", "consumer", id, "capacity", capacity, "policy", policy.String())
	return &ConsumerHandle{router: r, reg: reg}, nil
}

// Unregister removes a consumer and closes its channel. The consumer
// drains what is buffered and then sees ErrEndOfStream; a publisher
// blocked on the channel is released. Unknown ids are ignored.
func (r *Router) Unregister(id string) {
	r.mu.Lock()
	reg, ok := r.consumers[id]
	if ok {
		delete(r.consumers, id)
	}
	r.mu.Unlock()

	if ok {
		reg.ch.Close()
		r.logger.Info("consumer unregistered", "consumer", id)
	}
}

// remove unregisters reg only if it is still the registered instance for
// its id, so a late disconnect never removes a re-registered consumer.
func (r *Router) remove(reg *registration) bool {
	r.mu.Lock()
	current, ok := r.consumers[reg.id]
	if ok && current == reg {
		delete(r.consumers, reg.id)
	}
	r.mu.Unlock()

	reg.ch.Close()
	return ok && current == reg
}

// disconnect forcibly removes a consumer and reports it through its hook.
func (r *Router) disconnect(reg *registration, cause error) {
	if !r.remove(reg) {
		return
	}
	r.observer.ConsumerDisconnected(reg.id)
	r.logger.Warn("consumer disconnected", "consumer", reg.id, "error", cause)

	reg.hookOnce.Do(func() {
		if reg.hook != nil {
			reg.hook(reg.id, cause)
		}
	})
}

// Consumers returns the registered consumer ids in sorted order.
func (r *Router) Consumers() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.consumers))
	for id := range r.consumers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// ConsumerStats describes one registered consumer.
type ConsumerStats struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
	ChannelStats
}

// Stats returns statistics for every registered consumer, sorted by id.
func (r *Router) Stats() []ConsumerStats {
	regs := r.snapshot()
	out := make([]ConsumerStats, 0, len(regs))
	for _, reg := range regs {
		out = append(out, ConsumerStats{
			ID:           reg.id,
			Policy:       reg.policy.String(),
			ChannelStats: reg.ch.Stats(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Router) snapshot() []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := make([]*registration, 0, len(r.consumers))
	for _, reg := range r.consumers {
		regs = append(regs, reg)
	}
	return regs
}

// Publish delivers a copy of ev to every registered consumer.
//
// It returns once every channel has accepted, dropped or refused the event.
// It never waits for consumers to process events. Only Block channels can
// make Publish wait, and those are waited on concurrently.
//
// Parameters:
//   - ctx: Bounds Block waits together with the publish timeout
//   - ev: Event to route; ID and ReceivedAt are stamped by the router
//
// Returns:
//   - PublishResult: Consumer ids grouped by outcome
//   - error: Validation errors, ErrNoConsumers in strict mode, or a join of
//     per-consumer ErrPublishTimeout errors
func (r *Router) Publish(ctx context.Context, ev event.Event) (PublishResult, error) {
	var res PublishResult

	if err := ev.Validate(); err != nil {
		return res, err
	}
	if ev.ID == "" {
		ev.ID = r.newID()
	}
	ev.ReceivedAt = r.clock.Now()

	regs := r.snapshot()
	if len(regs) == 0 {
		if r.strict {
			return res, ErrNoConsumers
		}
		return res, nil
	}
	r.observer.EventPublished(len(regs))

	// Non-blocking pass first so a full Block channel never holds up
	// consumers that have room.
	type pending struct {
		reg   *registration
		space <-chan struct{}
	}
	var waits []pending

	for _, reg := range regs {
		out, space := reg.ch.tryEnqueue(ev)
		if out == full {
			waits = append(waits, pending{reg: reg, space: space})
			continue
		}
		r.record(&res, reg, out)
	}

	if len(waits) == 0 {
		return res, nil
	}

	outcomes := make([]outcome, len(waits))
	if len(waits) == 1 {
		outcomes[0] = r.waitBlocked(ctx, waits[0].reg, ev, waits[0].space)
	} else {
		var wg sync.WaitGroup
		for i, w := range waits {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i] = r.waitBlocked(ctx, w.reg, ev, w.space)
			}()
		}
		wg.Wait()
	}

	var errs []error
	for i, w := range waits {
		r.record(&res, w.reg, outcomes[i])
		if outcomes[i] == timedOut {
			errs = append(errs, &ConsumerError{ConsumerID: w.reg.id, Err: ErrPublishTimeout})
		}
	}
	return res, errors.Join(errs...)
}

func (r *Router) waitBlocked(ctx context.Context, reg *registration, ev event.Event, space <-chan struct{}) outcome {
	var expired <-chan time.Time
	if r.publishTimeout > 0 {
		t := r.clock.NewTimer(r.publishTimeout)
		defer t.Stop()
		expired = t.Chan()
	}
	return reg.ch.enqueueWait(ctx, ev, space, expired)
}

// record files one channel outcome into res and fires observer hooks.
func (r *Router) record(res *PublishResult, reg *registration, out outcome) {
	switch out {
	case accepted:
		res.Delivered = append(res.Delivered, reg.id)
	case evicted:
		res.Delivered = append(res.Delivered, reg.id)
		r.observer.EventDropped(reg.id, reg.policy)
		r.logger.Debug("oldest event evicted", "consumer", reg.id)
	case rejected:
		res.Dropped = append(res.Dropped, reg.id)
		r.observer.EventDropped(reg.id, reg.policy)
		r.logger.Debug("event dropped", "consumer", reg.id)
	case overflowed:
		res.Disconnected = append(res.Disconnected, reg.id)
		r.disconnect(reg, ErrConsumerDisconnected)
	case closedOut:
		res.Disconnected = append(res.Disconnected, reg.id)
	case timedOut:
		res.TimedOut = append(res.TimedOut, reg.id)
		r.observer.PublishTimedOut(reg.id)
		r.logger.Warn("publish timed out", "consumer", reg.id)
	case full:
		// Never recorded; full always resolves to another outcome.
	}
}

// ConsumerHandle is the consumer side of a registration.
type ConsumerHandle struct {
	router *Router
	reg    *registration
}

// ID returns the consumer id.
func (h *ConsumerHandle) ID() string { return h.reg.id }

// Policy returns the overflow policy of the consumer.
func (h *ConsumerHandle) Policy() OverflowPolicy { return h.reg.policy }

// Next blocks for the next event. It returns ErrEndOfStream after the
// consumer is unregistered and its buffer drained.
func (h *ConsumerHandle) Next(ctx context.Context) (event.Event, error) {
	return h.reg.ch.Next(ctx)
}

// TryNext returns the next buffered event without blocking.
func (h *ConsumerHandle) TryNext() (event.Event, bool) { return h.reg.ch.TryNext() }

// Ready receives a token after new events arrive.
func (h *ConsumerHandle) Ready() <-chan struct{} { return h.reg.ch.Ready() }

// Done is closed once the consumer is unregistered.
func (h *ConsumerHandle) Done() <-chan struct{} { return h.reg.ch.Done() }

// Len returns the number of buffered events.
func (h *ConsumerHandle) Len() int { return h.reg.ch.Len() }

// Stats returns the channel counters.
func (h *ConsumerHandle) Stats() ChannelStats { return h.reg.ch.Stats() }

// Unregister removes this consumer from the router. Safe to call repeatedly.
func (h *ConsumerHandle) Unregister() {
	if h.router.remove(h.reg) {
		h.router.logger.Info("consumer unregistered", "consumer", h.reg.id)
	}
}

// Disconnect removes this consumer and reports cause through its error
// hook, as an overflow under DisconnectConsumer would.
func (h *ConsumerHandle) Disconnect(cause error) {
	h.router.disconnect(h.reg, fmt.Errorf("%w: %w", ErrConsumerDisconnected, cause))
}
