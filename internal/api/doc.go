// Package api implements the HTTP ingress adapter, operational REST API and
// dashboard WebSocket server for the telemetry core.
//
// This package provides:
//   - Ingress endpoints that turn HTTP requests into canonical events
//   - Read-only endpoints for live device state, consumers and dead letters
//   - Prometheus exposition on /metrics
//   - WebSocket hub pushing live state deltas to dashboards
//   - Middleware stack (request ID, logging, recovery, CORS, basic auth, rate limit)
//
// # Ingress
//
//	POST /publish/{device_id}/{channel}[?model_id=...]
//	PUT  /telemetry/{tenant}/{device}            (channel = tenant)
//
// The body is decoded by Content-Type (JSON, CBOR, or raw bytes) after
// Content-Encoding (gzip, zstd) is removed. Timestamps are assigned on
// receipt and kept monotonic per device and channel. A publish that every
// consumer accepted or dropped by policy answers 202; a timed-out BLOCK
// consumer answers 503 with Retry-After.
//
// # Dashboards
//
// Clients connect to the WebSocket path (a JWT in ?token= is required when
// security.jwt.secret is set) and receive "state.delta" messages. A
// "get_state" request answers with the current "state.snapshot" of one
// device so a new session can seed its view.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
