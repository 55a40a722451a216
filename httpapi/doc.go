// Package httpapi exposes net/http adapters for a goRoam.Engine: request
// context enrichment, per-request roaming reconciliation, the remote-login
// landing handler and the JSON account-linking endpoints.
//
// # Middleware order
//
//	RequestContext -> Roaming -> application
//
// [RequestContext] must run first. The engine reads the client IP, serving
// tenant and logout marker from the request context, and remote-login tokens
// are bound to that IP.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT sign
// or verify tokens, read the roaming cookie, or check credentials itself.
//
// # What this package must NOT do
//
//   - Echo internal error causes to clients.
//   - Access Redis (the engine and the session host handle I/O).
package httpapi
