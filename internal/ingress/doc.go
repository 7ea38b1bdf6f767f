// Package ingress holds what protocol adapters share: the Publisher
// contract they hand events to, per-key timestamp stamping, and payload
// decoding for the content types devices send.
//
// Adapters live next to their transport: the HTTP endpoints in
// internal/api and the MQTT subscriber in internal/ingress/mqttingress.
// Neither reaches into the router beyond Publisher.
//
// # Timestamps
//
// Events must carry non-decreasing timestamps per (device, channel) for a
// single adapter instance. Stamper enforces this by assigning the receive
// time when a device sends none, and clamping a timestamp that goes
// backwards to the last one issued for the key.
//
// # Payloads
//
//   - application/json (and +json): object fields in document order,
//     nested objects flattened with '.', arrays kept as JSON text.
//   - application/cbor: map fields in sorted key order, flattened the same way.
//   - anything else: a single "data" bytes field.
//
// Content-Encoding gzip and zstd bodies are decompressed first.
package ingress
