// Package deadletter records batches that a sink consumer could not deliver.
//
// A batch ends up here when storage rejects it permanently, when the sink
// exhausts its retry budget and disconnects, or when the final flush on
// shutdown fails. The events are kept as a zstd-compressed JSON array
// together with the consumer, the reason and the last error, so operators
// can inspect or replay them.
//
// SQLiteRepository implements sink.DeadLetters.
package deadletter
