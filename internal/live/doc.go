// Package live keeps the latest reading of every (device, channel) in
// memory and pushes state deltas to dashboard sessions.
//
// The Aggregator drains its router consumer continuously. For each event it
// replaces the stored entry unless the event is older than what is stored;
// stale events are discarded and counted, never treated as errors. After a
// successful update it calls the Notifier outside of any lock. Notifiers
// are best-effort: a session that cannot take a delta loses it, and can
// always reseed itself from GetState.
//
// # LRU Bound
//
// When MaxDevices is set, the least recently updated device is evicted once
// the bound is reached. Entries never expire otherwise.
//
// # Thread Safety
//
// Apply, GetState and Devices are safe for concurrent use.
package live
