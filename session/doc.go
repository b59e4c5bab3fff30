// Package session implements the Redis-backed session record store: one
// record per signed-in device, keyed by (userID, sessionID), holding the
// SHA-256 hash of the session's current refresh token.
//
// # Concurrency model
//
// The store is the engine's only shared mutable state. Every write that
// depends on the current token hash goes through a Lua compare-and-swap,
// so concurrent rotation attempts on one session admit exactly one winner
// and losers observe a hash mismatch.
//
// # Key layout
//
//	<prefix>:<userID>:<sessionID>  record blob (TTL = record expiry)
//	<prefix>u:<userID>             SET of active session IDs
//	<prefix>rp:<sessionID>         replay anomaly counter
//
// # What this package must NOT do
//
//   - Parse or verify refresh tokens (package refresh).
//   - Decide rotation timing or handle reuse policy (Engine).
package session
