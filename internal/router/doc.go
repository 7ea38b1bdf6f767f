// Package router fans canonical telemetry events out to registered
// consumers through bounded, per-consumer delivery channels.
//
// # Overview
//
// Ingress adapters call Router.Publish. The router copies the event into
// every currently registered consumer's Channel and returns once each copy
// has been accepted, dropped or refused according to that consumer's
// OverflowPolicy. It never waits for a consumer to process an event.
//
//	r := router.New(router.WithPublishTimeout(2 * time.Second))
//	sink, _ := r.Register("sink", 1024, router.Block)
//	live, _ := r.Register("live", 256, router.DropOldest)
//
//	res, err := r.Publish(ctx, ev)
//
// # Overflow Policies
//
//   - Block: Publish waits for room, bounded by the publish timeout.
//   - DropOldest: the oldest queued event is evicted.
//   - DropNewest: the incoming event is discarded.
//   - DisconnectConsumer: the consumer is unregistered on overflow.
//
// # Isolation
//
// Each Channel has its own lock. The registration map is guarded by a
// single RWMutex that is held only while registering, unregistering or
// taking a snapshot at the start of Publish. Full Block channels are waited
// on concurrently, so one stalled consumer never delays delivery to another
// beyond the time Publish itself takes to return.
//
// # Ordering
//
// Each Channel is FIFO. Events published sequentially by one adapter for
// the same (device, channel) key reach each consumer in publish order.
//
// # Thread Safety
//
// All Router and ConsumerHandle methods are safe for concurrent use.
// A ConsumerHandle is intended to be drained by a single goroutine.
package router
