// Package storage defines the contract between the sink driver and a
// durable time-series backend.
//
// A backend implements Writer. WriteBatch returns nil on success, or an
// error the driver classifies as transient (retry the same batch later)
// or permanent (drop the batch and report it). Backends mark errors with
// Transient and Permanent; anything unmarked is treated as transient so an
// unexpected failure never silently loses data without a retry.
package storage
