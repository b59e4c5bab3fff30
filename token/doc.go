// Package token implements the self-contained encrypted access-token codec.
//
// # Token format
//
// base64url( nonce[12] || AES-256-GCM( DEFLATE( JSON payload ) ) ). The
// payload is the identity snapshot plus iat/exp. The key is derived from a
// long-lived server secret with HKDF-SHA256 ([DeriveKey]).
//
// # Architecture boundaries
//
// This package owns sealing and opening. It never touches the session store:
// access-token verification is decrypt-only so the per-request hot path stays
// CPU-bound. Rotation and revocation live in the refresh protocol.
//
// # What this package must NOT do
//
//   - Distinguish "tampered" from "expired" in its error surface.
//   - Access Redis or any I/O.
//   - Embed credential hashes or session lists in the payload.
package token
