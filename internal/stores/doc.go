// Package stores provides the small Redis-backed records the roaming engine
// keeps outside the host's identity store: the cached tenant settings blob,
// the consumed remote-login token registry, the deferred-removal queue, and
// single-use nonces guarding the account-linking endpoints.
//
// # Architecture boundaries
//
// This package owns key layout and Redis error wrapping. It does NOT decide
// whether a token is valid, whether settings are in range, or when a removal
// is processed; those decisions belong to the engine and internal/flows.
//
// # What this package must NOT do
//
//   - Import goRoam or any sibling internal package.
//   - Store raw token signatures as keys.
package stores
