package tsdb

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

func BenchmarkFormatEvent_Simple(b *testing.B) {
	ev := event.Event{
		DeviceID:  "light-01",
		Channel:   "power",
		Timestamp: time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC),
		Payload:   event.MustPayload(event.Field{Name: "watts", Value: event.Float(23.5)}),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatEvent("telemetry", ev)
	}
}

func BenchmarkFormatEvent_MultiField(b *testing.B) {
	ev := event.Event{
		DeviceID:  "thermostat-01",
		Channel:   "climate",
		Timestamp: time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC),
		Payload: event.MustPayload(
			event.Field{Name: "temperature", Value: event.Float(21.5)},
			event.Field{Name: "humidity", Value: event.Float(45)},
			event.Field{Name: "setpoint", Value: event.Int(22)},
			event.Field{Name: "mode", Value: event.String("heating")},
		),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		formatEvent("telemetry", ev)
	}
}

func BenchmarkEscapeTag(b *testing.B) {
	for i := 0; i < b.N; i++ {
		escapeTag("device_id=light,room 01")
	}
}
