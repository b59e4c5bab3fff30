// Package middleware exposes HTTP adapters for cookie-based credential
// transport on top of convauth.Engine.
//
// # Guards
//
//   - [AuthAccess] — stateless access-token verification, no Redis call.
//   - [AuthRefresh] — refresh-token verification with rotation; renewed
//     credentials are written back as cookies before the handler runs.
//
// Each guard reads the credential cookies (and the x-device-id header),
// calls the matching Engine method, and injects the verified identity into
// the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// the Engine.
//
// # What this package must NOT do
//
//   - Decode or create tokens directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
