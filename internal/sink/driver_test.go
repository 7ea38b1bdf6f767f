package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// recordingWriter stores every batch it is handed and fails according to fail.
type recordingWriter struct {
	mu    sync.Mutex
	calls [][]event.Event
	fail  func(call int) error
}

func (w *recordingWriter) WriteBatch(_ context.Context, batch []event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, batch)
	if w.fail != nil {
		return w.fail(len(w.calls))
	}
	return nil
}

func (w *recordingWriter) Calls() [][]event.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]event.Event, len(w.calls))
	copy(out, w.calls)
	return out
}

type recordingObserver struct {
	NopObserver
	mu      sync.Mutex
	delays  []time.Duration
	dropped int
	failed  []error
}

func (o *recordingObserver) BatchRetried(_ string, _ int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, d)
}

func (o *recordingObserver) BatchDropped(string, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func (o *recordingObserver) ConsumerFailed(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func (o *recordingObserver) lastDelay() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.delays[len(o.delays)-1]
}

type recordingDeadLetters struct {
	mu      sync.Mutex
	reasons []string
	events  int
}

func (d *recordingDeadLetters) RecordBatch(_ context.Context, _ string, reason string, batch []event.Event, _ error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	d.events += len(batch)
	return nil
}

type harness struct {
	router *router.Router
	handle *router.ConsumerHandle
	clock  *clock.FakeClock
	writer *recordingWriter
	obs    *recordingObserver
	dead   *recordingDeadLetters
	driver *Driver
	errc   chan error
	cancel context.CancelFunc
}

func newHarness(t *testing.T, cfg Config, fail func(int) error) *harness {
	t.Helper()
	h := &harness{
		router: router.New(),
		clock:  clock.NewFake(epoch),
		writer: &recordingWriter{fail: fail},
		obs:    &recordingObserver{},
		dead:   &recordingDeadLetters{},
		errc:   make(chan error, 1),
	}
	var err error
	h.handle, err = h.router.Register("sink", 100, router.Block)
	require.NoError(t, err)

	h.driver, err = New(h.handle, h.writer, cfg,
		WithClock(h.clock),
		WithObserver(h.obs),
		WithDeadLetters(h.dead),
		WithRand(func() float64 { return 0.5 }),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) publish(t *testing.T, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		_, err := h.router.Publish(context.Background(), ev(i))
		require.NoError(t, err)
	}
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.driver.Run(ctx) }()
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
		return nil
	}
}

func TestDriver_BatchesBySizeAndFlushesOnShutdown(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 10, FlushInterval: time.Hour}, nil)
	h.publish(t, 0, 25)
	h.start()

	require.Eventually(t, func() bool { return len(h.writer.Calls()) == 2 }, time.Second, time.Millisecond)

	h.cancel()
	require.NoError(t, h.wait(t))

	calls := h.writer.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 10)
	assert.Len(t, calls[1], 10)
	assert.Len(t, calls[2], 5)

	seq := 0
	for _, batch := range calls {
		for _, e := range batch {
			v, _ := e.Payload.Get("seq")
			i, _ := v.AsInt()
			assert.Equal(t, int64(seq), i)
			seq++
		}
	}
}

func TestDriver_FlushesOnInterval(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 100, FlushInterval: 2 * time.Second}, nil)
	h.publish(t, 0, 3)
	h.start()
	defer func() {
		h.cancel()
		_ = h.wait(t) //nolint:errcheck // clean shutdown checked elsewhere
	}()

	h.clock.WaitForTimers(1)
	assert.Empty(t, h.writer.Calls())

	h.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(h.writer.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, h.writer.Calls()[0], 3)
}

func TestDriver_TransientFailureRetriesSameBatch(t *testing.T) {
	transient := storage.Transient(errors.New("influx unavailable"))
	h := newHarness(t, Config{
		BatchSize:     2,
		FlushInterval: time.Hour,
		Backoff:       Backoff{Initial: 100 * time.Millisecond, Max: time.Minute, Multiplier: 2, Jitter: 0.5, MaxRetries: 5},
	}, func(call int) error {
		if call <= 3 {
			return transient
		}
		return nil
	})
	h.publish(t, 0, 2)
	h.start()
	defer func() {
		h.cancel()
		_ = h.wait(t) //nolint:errcheck // clean shutdown checked elsewhere
	}()

	for range 3 {
		h.clock.WaitForTimers(1)
		h.clock.Advance(h.obs.lastDelay())
	}

	require.Eventually(t, func() bool { return len(h.writer.Calls()) == 4 }, time.Second, time.Millisecond)

	calls := h.writer.Calls()
	for _, c := range calls[1:] {
		require.Len(t, c, 2)
		assert.Same(t, &calls[0][0], &c[0])
		assert.Equal(t, calls[0], c)
	}

	h.obs.mu.Lock()
	delays := append([]time.Duration(nil), h.obs.delays...)
	h.obs.mu.Unlock()
	require.Len(t, delays, 3)
	assert.Less(t, delays[0], delays[1])
	assert.Less(t, delays[1], delays[2])
}

func TestDriver_PermanentFailureDropsBatchAndContinues(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 2, FlushInterval: time.Hour}, func(call int) error {
		if call == 1 {
			return storage.Permanent(errors.New("field type conflict"))
		}
		return nil
	})
	h.publish(t, 0, 4)
	h.start()

	require.Eventually(t, func() bool { return len(h.writer.Calls()) == 2 }, time.Second, time.Millisecond)
	h.cancel()
	require.NoError(t, h.wait(t))

	assert.Len(t, h.writer.Calls(), 2, "permanent failure must not be retried")
	assert.Equal(t, 1, h.obs.dropped)
	assert.Equal(t, []string{ReasonPermanent}, h.dead.reasons)
	assert.Empty(t, h.obs.delays, "no backoff may be scheduled")
	assert.Empty(t, h.obs.failed)
}

func TestDriver_RetriesExhaustedDisconnects(t *testing.T) {
	h := newHarness(t, Config{
		BatchSize:     2,
		FlushInterval: time.Hour,
		Backoff:       Backoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2, Jitter: 0.1, MaxRetries: 2},
	}, func(int) error { return errors.New("connection refused") })

	other, err := h.router.Register("live", 100, router.DropOldest)
	require.NoError(t, err)

	h.publish(t, 0, 5)
	h.start()

	for range 2 {
		h.clock.WaitForTimers(1)
		h.clock.Advance(time.Minute)
	}

	err = h.wait(t)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "sink", fatal.ConsumerID)
	assert.Equal(t, 2, fatal.BatchSize)
	assert.Equal(t, 3, fatal.Attempts)

	assert.Equal(t, []string{"live"}, h.router.Consumers())
	assert.Len(t, h.writer.Calls(), 3)
	assert.Len(t, h.obs.failed, 1)
	assert.Equal(t, 5, h.dead.events)

	// The router keeps serving the remaining consumer.
	res, err := h.router.Publish(context.Background(), ev(5))
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, res.Delivered)
	assert.Equal(t, 6, other.Len())
}

func TestDriver_EndOfStreamFlushesAndReturns(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 10, FlushInterval: time.Hour}, nil)
	h.publish(t, 0, 4)
	h.start()

	h.clock.WaitForTimers(1)
	h.router.Unregister("sink")

	require.NoError(t, h.wait(t))
	calls := h.writer.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 4)
}
