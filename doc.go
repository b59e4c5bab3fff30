// Package convauth provides a multi-device session lifecycle engine with
// encrypted access tokens, signed rotating refresh tokens, and a
// Redis-backed session record store.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// convauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (TokenBundle, SessionInfo, MetricsSnapshot, etc.). All
// internal coordination — flow orchestration, record encoding, rate
// limiting, audit dispatch — lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Store or log any plaintext refresh token; only SHA-256 hashes
//     reach Redis.
//   - Import any sub-package that re-imports convauth (no import cycles).
//
// # Performance contract
//
// VerifyAccess is the hot path: decode and validate an access token with
// zero I/O. Refresh performs at most one Lua round-trip for rotation plus
// one identity lookup; SignIn performs one MULTI/EXEC write.
package convauth
