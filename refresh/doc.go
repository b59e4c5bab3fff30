// Package refresh implements issuance and verification of signed rotating
// refresh tokens.
//
// # Token format
//
// HS256-signed JWT with claims {sub, sid, did?, iat, exp}. Tokens are never
// stored in plaintext — the session store retains only the SHA-256 hash of
// the signed string.
//
// # Architecture boundaries
//
// This package owns signing and structural validation. Rotation policy,
// reuse detection, and session invalidation on replay are handled by the
// Engine and session store.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Import convauth, token, or session.
//   - Implement rotation or replay logic.
package refresh
