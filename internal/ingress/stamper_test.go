package ingress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

func TestStamper(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	s := NewStamper(clk, 0)

	k := event.Key{DeviceID: "d1", Channel: "temp"}
	other := event.Key{DeviceID: "d1", Channel: "humidity"}

	assert.Equal(t, start, s.Stamp(k, time.Time{}), "missing timestamp uses receive time")

	later := start.Add(time.Minute)
	assert.Equal(t, later, s.Stamp(k, later))
	assert.Equal(t, later, s.Stamp(k, start.Add(-time.Hour)), "backwards timestamp is clamped")
	assert.Equal(t, start.Add(-time.Hour), s.Stamp(other, start.Add(-time.Hour)), "keys are independent")

	clk.Advance(30 * time.Second)
	assert.Equal(t, later, s.Stamp(k, time.Time{}), "receive time before last issued is clamped")
}

func TestStamper_ForgetsLeastRecentKeys(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStamper(clock.NewFake(start), 1)

	a := event.Key{DeviceID: "a", Channel: "c"}
	b := event.Key{DeviceID: "b", Channel: "c"}

	s.Stamp(a, start.Add(time.Hour))
	s.Stamp(b, start)
	assert.Equal(t, start, s.Stamp(a, start), "evicted key starts over")
}
