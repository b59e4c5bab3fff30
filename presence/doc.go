// Package presence tracks which authenticated users currently hold live
// connections (websockets, SSE streams, long polls).
//
// The engine itself is presence-agnostic: a [Registry] is owned by the
// application and keyed by engine identities. The in-memory implementation
// returned by [NewRegistry] suits single-process deployments; multi-node
// deployments should implement [Registry] over shared state.
//
// # What this package must NOT do
//
//   - Touch Redis or any engine internals.
//   - Close or manage the connections it tracks (callers own lifecycle;
//     [Registry.DisconnectUser] only reports what was dropped).
package presence
