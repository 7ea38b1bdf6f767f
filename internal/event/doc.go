// Package event defines the canonical telemetry event shared by every
// ingress adapter and every consumer.
//
// An Event is created by an adapter, accepted by the router and then
// fanned out by value to each registered consumer. Nothing in this package
// exposes a way to mutate a Payload after construction, so every copy a
// consumer receives is logically independent of the copies other consumers
// hold.
//
// # Payload
//
// A Payload is an ordered list of uniquely named fields. Field values are
// typed scalars (float, int, bool, string or binary). Order is the order the
// adapter decoded the fields in and is preserved through JSON encoding.
//
//	p, err := event.NewPayload(
//	    event.Field{Name: "temperature", Value: event.Float(21.5)},
//	    event.Field{Name: "unit", Value: event.String("C")},
//	)
//
// # Thread Safety
//
// Event and Payload values are immutable and safe to share between
// goroutines without synchronisation.
package event
