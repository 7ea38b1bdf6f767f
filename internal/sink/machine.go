package sink

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// State is the driver state.
type State int

// Driver states.
const (
	StateIdle State = iota
	StateBatching
	StateFlushing
	StateRetryBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBatching:
		return "batching"
	case StateFlushing:
		return "flushing"
	case StateRetryBackoff:
		return "retry_backoff"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Action tells the driver what to do after a transition.
type Action int

// Actions.
const (
	// ActionNone means keep consuming.
	ActionNone Action = iota
	// ActionFlush means write Decision.Batch now.
	ActionFlush
	// ActionWait means retry Decision.Batch after Decision.Delay.
	ActionWait
	// ActionDrop means the batch failed permanently and was discarded.
	ActionDrop
	// ActionAbandon means the retry budget is spent; the driver must stop.
	ActionAbandon
	// ActionWritten means the in-flight batch was stored.
	ActionWritten
)

// Decision is the outcome of a transition.
type Decision struct {
	Action  Action
	Batch   []event.Event
	Delay   time.Duration
	Attempt int // retries performed so far for Batch
	Err     error
}

// MachineConfig holds batching and retry thresholds.
type MachineConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Backoff       Backoff
	// Rand returns jitter samples in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// Machine is the batching and retry state machine of one sink driver.
// It is not safe for concurrent use.
type Machine struct {
	cfg MachineConfig

	state      State
	batch      []event.Event
	batchStart time.Time
	inflight   []event.Event
	attempt    int
	retryAt    time.Time
}

// NewMachine validates cfg and returns an idle machine.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("%w: flush interval must be positive", ErrInvalidConfig)
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Machine{cfg: cfg}, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Accepting reports whether Add may be called.
func (m *Machine) Accepting() bool {
	return m.state == StateIdle || m.state == StateBatching
}

// Pending returns the number of events held by the machine, batched or in flight.
func (m *Machine) Pending() int { return len(m.batch) + len(m.inflight) }

// Add appends ev to the current batch. When the batch reaches BatchSize
// the machine moves to FLUSHING and returns ActionFlush.
func (m *Machine) Add(ev event.Event, now time.Time) (Decision, error) {
	if !m.Accepting() {
		return Decision{}, fmt.Errorf("%w: state %s", ErrNotAccepting, m.state)
	}
	if m.state == StateIdle {
		m.state = StateBatching
		m.batchStart = now
		m.batch = make([]event.Event, 0, m.cfg.BatchSize)
	}
	m.batch = append(m.batch, ev)
	if len(m.batch) >= m.cfg.BatchSize {
		return m.startFlush(), nil
	}
	return Decision{}, nil
}

// Deadline returns when Due will next produce a flush, if anything is scheduled.
func (m *Machine) Deadline() (time.Time, bool) {
	switch m.state {
	case StateBatching:
		return m.batchStart.Add(m.cfg.FlushInterval), true
	case StateRetryBackoff:
		return m.retryAt, true
	default:
		return time.Time{}, false
	}
}

// Due fires time-based transitions: the batch interval while BATCHING and
// the retry delay while in RETRY_BACKOFF.
func (m *Machine) Due(now time.Time) Decision {
	deadline, ok := m.Deadline()
	if !ok || now.Before(deadline) {
		return Decision{}
	}
	switch m.state {
	case StateBatching:
		return m.startFlush()
	case StateRetryBackoff:
		m.state = StateFlushing
		return Decision{Action: ActionFlush, Batch: m.inflight, Attempt: m.attempt}
	}
	return Decision{}
}

// FlushNow forces the pending batch out regardless of thresholds. It is
// used on shutdown and returns ActionNone when there is nothing to write.
func (m *Machine) FlushNow() Decision {
	switch m.state {
	case StateBatching:
		return m.startFlush()
	case StateRetryBackoff:
		m.state = StateFlushing
		return Decision{Action: ActionFlush, Batch: m.inflight, Attempt: m.attempt}
	}
	return Decision{}
}

func (m *Machine) startFlush() Decision {
	m.inflight = m.batch
	m.batch = nil
	m.attempt = 0
	m.state = StateFlushing
	return Decision{Action: ActionFlush, Batch: m.inflight}
}

// Complete records the result of writing the in-flight batch.
//
// A nil error returns to IDLE with ActionWritten. A permanent error drops
// the batch and returns to IDLE with ActionDrop. A transient error moves
// to RETRY_BACKOFF with ActionWait, or to STOPPED with ActionAbandon once
// MaxRetries retries have failed.
func (m *Machine) Complete(err error, now time.Time) Decision {
	if m.state != StateFlushing {
		return Decision{}
	}
	batch, attempt := m.inflight, m.attempt

	switch storage.Classify(err) {
	case storage.ClassNone:
		m.reset()
		return Decision{Action: ActionWritten, Batch: batch, Attempt: attempt}
	case storage.ClassPermanent:
		m.reset()
		return Decision{Action: ActionDrop, Batch: batch, Attempt: attempt, Err: err}
	}

	if attempt >= m.cfg.Backoff.MaxRetries {
		m.state = StateStopped
		m.inflight = nil
		return Decision{Action: ActionAbandon, Batch: batch, Attempt: attempt, Err: err}
	}

	delay := m.cfg.Backoff.Delay(m.attempt, m.cfg.Rand())
	m.attempt++
	m.retryAt = now.Add(delay)
	m.state = StateRetryBackoff
	return Decision{Action: ActionWait, Batch: batch, Delay: delay, Attempt: m.attempt, Err: err}
}

// Stop moves the machine to STOPPED and returns whatever it still held.
func (m *Machine) Stop() []event.Event {
	var rest []event.Event
	rest = append(rest, m.inflight...)
	rest = append(rest, m.batch...)
	m.inflight = nil
	m.batch = nil
	m.state = StateStopped
	return rest
}

func (m *Machine) reset() {
	m.inflight = nil
	m.attempt = 0
	m.state = StateIdle
}
