// Package internal contains helper utilities that are intentionally private to
// convauth, including session identifier generation, composite-key parsing, and
// device fingerprint hashing.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestration for the refresh protocol
//   - metrics — lock-free counters and latency histograms
//   - rate — Redis-backed fixed-window rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public convauth API.
//   - Be imported by any package outside the convauth module.
package internal
