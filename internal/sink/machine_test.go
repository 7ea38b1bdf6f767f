package sink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ev(seq int) event.Event {
	return event.Event{
		DeviceID:  "d1",
		Channel:   "temp",
		Timestamp: epoch.Add(time.Duration(seq) * time.Second),
		Payload:   event.MustPayload(event.Field{Name: "seq", Value: event.Int(int64(seq))}),
	}
}

func testBackoff() Backoff {
	return Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
		Jitter:     0.5,
		MaxRetries: 4,
	}
}

func newTestMachine(t *testing.T, size int) *Machine {
	t.Helper()
	m, err := NewMachine(MachineConfig{
		BatchSize:     size,
		FlushInterval: time.Second,
		Backoff:       testBackoff(),
		Rand:          func() float64 { return 0.99 },
	})
	require.NoError(t, err)
	return m
}

func TestMachine_SizeThreshold(t *testing.T) {
	m := newTestMachine(t, 3)
	assert.Equal(t, StateIdle, m.State())

	for i := range 2 {
		dec, err := m.Add(ev(i), epoch)
		require.NoError(t, err)
		assert.Equal(t, ActionNone, dec.Action)
		assert.Equal(t, StateBatching, m.State())
	}

	dec, err := m.Add(ev(2), epoch)
	require.NoError(t, err)
	assert.Equal(t, ActionFlush, dec.Action)
	assert.Len(t, dec.Batch, 3)
	assert.Equal(t, StateFlushing, m.State())

	_, err = m.Add(ev(3), epoch)
	assert.ErrorIs(t, err, ErrNotAccepting)

	dec = m.Complete(nil, epoch)
	assert.Equal(t, ActionWritten, dec.Action)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 0, m.Pending())
}

func TestMachine_IntervalThreshold(t *testing.T) {
	m := newTestMachine(t, 100)

	_, ok := m.Deadline()
	assert.False(t, ok)

	_, err := m.Add(ev(0), epoch)
	require.NoError(t, err)
	_, err = m.Add(ev(1), epoch.Add(500*time.Millisecond))
	require.NoError(t, err)

	deadline, ok := m.Deadline()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(time.Second), deadline)

	assert.Equal(t, ActionNone, m.Due(epoch.Add(999*time.Millisecond)).Action)

	dec := m.Due(epoch.Add(time.Second))
	assert.Equal(t, ActionFlush, dec.Action)
	assert.Len(t, dec.Batch, 2)
}

func TestMachine_TransientRetriesIdenticalBatchWithIncreasingDelay(t *testing.T) {
	m := newTestMachine(t, 2)
	_, _ = m.Add(ev(0), epoch) //nolint:errcheck // idle machine accepts
	first, err := m.Add(ev(1), epoch)
	require.NoError(t, err)
	require.Equal(t, ActionFlush, first.Action)

	now := epoch
	var last time.Duration
	cause := storage.Transient(errors.New("timeout"))

	for attempt := 1; attempt <= testBackoff().MaxRetries; attempt++ {
		dec := m.Complete(cause, now)
		require.Equal(t, ActionWait, dec.Action)
		assert.Equal(t, attempt, dec.Attempt)
		assert.Equal(t, StateRetryBackoff, m.State())
		if attempt > 1 && last < testBackoff().Max {
			assert.Greater(t, dec.Delay, last, "delay must increase until capped")
		}
		assert.LessOrEqual(t, dec.Delay, testBackoff().Max)
		last = dec.Delay

		assert.Equal(t, ActionNone, m.Due(now.Add(dec.Delay-time.Nanosecond)).Action)
		now = now.Add(dec.Delay)
		retry := m.Due(now)
		require.Equal(t, ActionFlush, retry.Action)
		require.Len(t, retry.Batch, len(first.Batch))
		assert.Same(t, &first.Batch[0], &retry.Batch[0], "retry must resubmit the same batch")
	}

	dec := m.Complete(cause, now)
	assert.Equal(t, ActionAbandon, dec.Action)
	assert.Equal(t, StateStopped, m.State())
	assert.Len(t, dec.Batch, 2)
}

func TestMachine_PermanentNeverRetries(t *testing.T) {
	m := newTestMachine(t, 1)
	dec, err := m.Add(ev(0), epoch)
	require.NoError(t, err)
	require.Equal(t, ActionFlush, dec.Action)

	dec = m.Complete(storage.Permanent(errors.New("schema rejected")), epoch)
	assert.Equal(t, ActionDrop, dec.Action)
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, m.Accepting())

	_, ok := m.Deadline()
	assert.False(t, ok)
}

func TestMachine_FlushNowAndStop(t *testing.T) {
	m := newTestMachine(t, 10)
	assert.Equal(t, ActionNone, m.FlushNow().Action)

	_, _ = m.Add(ev(0), epoch) //nolint:errcheck // idle machine accepts
	dec := m.FlushNow()
	assert.Equal(t, ActionFlush, dec.Action)

	m.Complete(errors.New("unclassified"), epoch)
	assert.Equal(t, StateRetryBackoff, m.State())

	rest := m.Stop()
	assert.Len(t, rest, 1)
	assert.Equal(t, StateStopped, m.State())
}

func TestNewMachine_Validation(t *testing.T) {
	_, err := NewMachine(MachineConfig{BatchSize: 0, FlushInterval: time.Second, Backoff: testBackoff()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMachine(MachineConfig{BatchSize: 1, FlushInterval: 0, Backoff: testBackoff()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBackoff_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Backoff)
		valid  bool
	}{
		{"default", func(*Backoff) {}, true},
		{"zero initial", func(b *Backoff) { b.Initial = 0 }, false},
		{"max below initial", func(b *Backoff) { b.Max = b.Initial / 2 }, false},
		{"multiplier one", func(b *Backoff) { b.Multiplier = 1 }, false},
		{"jitter too large", func(b *Backoff) { b.Jitter = 1 }, false},
		{"negative retries", func(b *Backoff) { b.MaxRetries = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := DefaultBackoff()
			tt.modify(&b)
			err := b.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestBackoff_DelayStrictlyIncreasesUntilCap(t *testing.T) {
	b := DefaultBackoff()
	samples := []float64{0, 0.999, 0.5}

	for _, hi := range samples {
		for _, lo := range samples {
			prev := b.Delay(0, hi)
			for attempt := 1; attempt < 20; attempt++ {
				next := b.Delay(attempt, lo)
				if prev < b.Max {
					assert.Greater(t, next, prev, "attempt %d", attempt)
				} else {
					assert.Equal(t, b.Max, next)
				}
				prev = b.Delay(attempt, hi)
			}
		}
	}
	assert.Equal(t, b.Max, b.Delay(1000, 0))
}
