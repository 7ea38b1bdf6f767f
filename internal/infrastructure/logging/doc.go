// Package logging provides structured logging for the telemetry core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the routing pipeline.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Levels
//
// Per-event outcomes (policy drops, stale discards) log at debug so a
// flooded channel cannot flood the log. Sink retries log at warn;
// permanent drops and consumer disconnects at error.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("router").Info("consumer registered", "consumer", "live")
//
// Never log ingress credentials, JWT secrets or storage tokens.
package logging
