// Package sink drains a router consumer into a durable storage.Writer.
//
// # State Machine
//
// Batching and retry are modelled by Machine, a pure state machine with no
// timers of its own:
//
//	IDLE ──Add──▶ BATCHING ──size or interval──▶ FLUSHING
//	FLUSHING ──ok──▶ IDLE
//	FLUSHING ──permanent──▶ IDLE (batch dropped)
//	FLUSHING ──transient──▶ RETRY_BACKOFF ──delay──▶ FLUSHING
//	RETRY_BACKOFF ──retries exhausted──▶ STOPPED
//
// Driver feeds the machine events from the consumer handle and times from
// a clock.Clock, and carries out the actions it returns. Tests drive the
// machine directly, or the driver with a fake clock.
//
// # Delivery
//
// A transient failure resubmits the identical batch. Duplicates reaching
// storage are expected; events carry an ID for deduplication. While a
// batch is in flight or backing off the driver stops dequeuing, so a slow
// store pushes back on the router through the channel's overflow policy.
//
// When retries are exhausted the driver disconnects itself from the router,
// records the lost batch as a dead letter and returns a *FatalError.
package sink
