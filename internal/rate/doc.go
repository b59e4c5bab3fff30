// Package rate provides Redis-backed fixed-window rate limit primitives for
// the sign-in and refresh surfaces of the session engine.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - asi: — sign-in per-identifier
//   - asp: — sign-in per-IP
//   - arf: — refresh per-session
//
// # What this package must NOT do
//
//   - Implement rotation or revocation policy.
//   - Be imported outside the convauth module.
package rate
