// Package flows holds the engine's request flows as dependency-injected
// functions. Each flow receives a Deps struct of narrow function fields and
// small interfaces, so flow logic stays testable without Redis, cookies, or
// the root package.
//
// Flows classify failures into enum kinds; mapping kinds to the public
// error taxonomy, audit events, and metrics happens at the root.
package flows
