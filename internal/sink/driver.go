package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// Default driver settings.
const (
	DefaultBatchSize       = 500
	DefaultFlushInterval   = time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Source is the consumer side of a router registration.
// *router.ConsumerHandle satisfies it.
type Source interface {
	ID() string
	TryNext() (event.Event, bool)
	Ready() <-chan struct{}
	Done() <-chan struct{}
	Disconnect(cause error)
}

// Observer receives sink metrics.
type Observer interface {
	BatchWritten(consumerID string, size int, latency time.Duration)
	BatchRetried(consumerID string, attempt int, delay time.Duration)
	BatchDropped(consumerID string, size int, err error)
	ConsumerFailed(consumerID string, err error)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) BatchWritten(string, int, time.Duration) {}
func (NopObserver) BatchRetried(string, int, time.Duration) {}
func (NopObserver) BatchDropped(string, int, error)         {}
func (NopObserver) ConsumerFailed(string, error)            {}

// DeadLetters records batches that will never reach storage.
type DeadLetters interface {
	RecordBatch(ctx context.Context, consumerID, reason string, batch []event.Event, cause error) error
}

// Dead letter reasons.
const (
	ReasonPermanent = "permanent_failure"
	ReasonExhausted = "retries_exhausted"
	ReasonShutdown  = "shutdown_flush_failed"
)

// Logger defines the logging interface used by the Driver.
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

// Config holds driver settings.
type Config struct {
	BatchSize       int
	FlushInterval   time.Duration
	Backoff         Backoff
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Driver drains one consumer into a storage.Writer.
type Driver struct {
	src     Source
	writer  storage.Writer
	cfg     Config
	machine *Machine

	clock       clock.Clock
	observer    Observer
	deadLetters DeadLetters
	logger      Logger
	rand        func() float64
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock driving batch intervals and backoff.
func WithClock(c clock.Clock) Option { return func(d *Driver) { d.clock = c } }

// WithObserver installs metric hooks.
func WithObserver(o Observer) Option { return func(d *Driver) { d.observer = o } }

// WithDeadLetters records dropped and abandoned batches.
func WithDeadLetters(dl DeadLetters) Option { return func(d *Driver) { d.deadLetters = dl } }

// WithLogger sets the driver logger.
func WithLogger(l Logger) Option { return func(d *Driver) { d.logger = l } }

// WithRand replaces the jitter source. Used by tests.
func WithRand(f func() float64) Option { return func(d *Driver) { d.rand = f } }

// New creates a driver for src writing to w.
//
// Zero values in cfg fall back to the package defaults.
func New(src Source, w storage.Writer, cfg Config, opts ...Option) (*Driver, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	d := &Driver{
		src:      src,
		writer:   w,
		cfg:      cfg,
		clock:    clock.Real(),
		observer: NopObserver{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}

	m, err := NewMachine(MachineConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Backoff:       cfg.Backoff,
		Rand:          d.rand,
	})
	if err != nil {
		return nil, err
	}
	d.machine = m
	return d, nil
}

// State returns the machine state. Only meaningful from the Run goroutine
// or after Run returns.
func (d *Driver) State() State { return d.machine.State() }

// Run consumes until ctx is cancelled, the consumer is unregistered, or the
// retry budget is exhausted.
//
// On cancellation or end-of-stream it makes one best-effort attempt to
// write what is pending and returns nil. On exhaustion it disconnects the
// consumer from the router and returns a *FatalError.
func (d *Driver) Run(ctx context.Context) error {
	id := d.src.ID()
	d.logger.Info("sink driver started", "consumer", id,
		"batch_size", d.cfg.BatchSize, "flush_interval", d.cfg.FlushInterval)

	for {
		if err := d.step(ctx); err != nil {
			if errors.Is(err, errStop) {
				d.shutdown(ctx)
				d.logger.Info("sink driver stopped", "consumer", id)
				return nil
			}
			return err
		}
	}
}

// errStop ends Run cleanly.
var errStop = errors.New("sink: stop")

// step performs one unit of work: consume what is buffered, or wait for
// new data, a deadline or shutdown.
func (d *Driver) step(ctx context.Context) error {
	if ctx.Err() != nil {
		return errStop
	}
	if dec := d.machine.Due(d.clock.Now()); dec.Action != ActionNone {
		return d.handle(ctx, dec)
	}

	if d.machine.Accepting() {
		if ev, ok := d.src.TryNext(); ok {
			dec, err := d.machine.Add(ev, d.clock.Now())
			if err != nil {
				return err
			}
			return d.handle(ctx, dec)
		}
		select {
		case <-d.src.Done():
			// Enqueue stops once closed; one more look is final.
			if ev, ok := d.src.TryNext(); ok {
				dec, err := d.machine.Add(ev, d.clock.Now())
				if err != nil {
					return err
				}
				return d.handle(ctx, dec)
			}
			return errStop
		default:
		}
	}

	var (
		timer   clock.Timer
		expired <-chan time.Time
	)
	if deadline, ok := d.machine.Deadline(); ok {
		timer = d.clock.NewTimer(deadline.Sub(d.clock.Now()))
		defer timer.Stop()
		expired = timer.Chan()
	}

	// Ready and Done are ignored while a batch is backing off, so a
	// slow store holds events in the channel.
	var ready <-chan struct{}
	var done <-chan struct{}
	if d.machine.Accepting() {
		ready = d.src.Ready()
		done = d.src.Done()
	}

	select {
	case <-ctx.Done():
		return errStop
	case <-ready:
		return nil
	case <-done:
		return nil
	case now := <-expired:
		return d.handle(ctx, d.machine.Due(now))
	}
}

// handle carries out a machine decision.
func (d *Driver) handle(ctx context.Context, dec Decision) error {
	for dec.Action == ActionFlush {
		dec = d.write(ctx, dec.Batch)
	}

	id := d.src.ID()
	switch dec.Action {
	case ActionWritten:
		if dec.Attempt > 0 {
			d.logger.Info("batch written after retry", "consumer", id, "size", len(dec.Batch), "retries", dec.Attempt)
		}
	case ActionWait:
		d.observer.BatchRetried(id, dec.Attempt, dec.Delay)
		d.logger.Warn("batch write failed, retrying", "consumer", id,
			"size", len(dec.Batch), "attempt", dec.Attempt, "delay", dec.Delay, "error", dec.Err)
	case ActionDrop:
		d.observer.BatchDropped(id, len(dec.Batch), dec.Err)
		d.logger.Error("batch rejected by storage, dropped", "consumer", id, "size", len(dec.Batch), "error", dec.Err)
		d.recordDeadLetter(ctx, ReasonPermanent, dec.Batch, dec.Err)
	case ActionAbandon:
		fatal := &FatalError{ConsumerID: id, BatchSize: len(dec.Batch), Attempts: dec.Attempt + 1, Err: dec.Err}
		d.observer.ConsumerFailed(id, fatal)
		d.logger.Error("sink retries exhausted, disconnecting", "consumer", id, "size", len(dec.Batch), "error", dec.Err)
		d.recordDeadLetter(ctx, ReasonExhausted, dec.Batch, dec.Err)
		d.src.Disconnect(fatal)
		if rest := d.drainSource(); len(rest) > 0 {
			d.recordDeadLetter(ctx, ReasonExhausted, rest, dec.Err)
		}
		return fatal
	}
	return nil
}

// write performs one WriteBatch call and feeds the result to the machine.
func (d *Driver) write(ctx context.Context, batch []event.Event) Decision {
	writeCtx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
	defer cancel()

	start := d.clock.Now()
	err := d.writer.WriteBatch(writeCtx, batch)
	now := d.clock.Now()
	if err == nil {
		d.observer.BatchWritten(d.src.ID(), len(batch), now.Sub(start))
	}
	return d.machine.Complete(err, now)
}

// shutdown writes pending and buffered events once, without retry.
func (d *Driver) shutdown(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.cfg.ShutdownTimeout)
	defer cancel()

	pending := append(d.machine.Stop(), d.drainSource()...)

	for len(pending) > 0 {
		n := min(len(pending), d.cfg.BatchSize)
		batch := pending[:n:n]
		pending = pending[n:]

		start := d.clock.Now()
		if err := d.writer.WriteBatch(ctx, batch); err != nil {
			d.observer.BatchDropped(d.src.ID(), len(batch), err)
			d.logger.Error("final flush failed", "consumer", d.src.ID(), "size", len(batch), "error", err)
			d.recordDeadLetter(ctx, ReasonShutdown, batch, err)
			continue
		}
		d.observer.BatchWritten(d.src.ID(), len(batch), d.clock.Now().Sub(start))
	}
}

// drainSource empties whatever is still buffered in the channel.
func (d *Driver) drainSource() []event.Event {
	var out []event.Event
	for {
		ev, ok := d.src.TryNext()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func (d *Driver) recordDeadLetter(ctx context.Context, reason string, batch []event.Event, cause error) {
	if d.deadLetters == nil {
		return
	}
	dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.WriteTimeout)
	defer cancel()
	if err := d.deadLetters.RecordBatch(dlCtx, d.src.ID(), reason, batch, cause); err != nil {
		d.logger.Error("recording dead letter failed", "consumer", d.src.ID(), "reason", reason,
			"error", fmt.Errorf("dead letter: %w", err))
	}
}
