// Package session provides a Redis-backed local session for one tenant of the
// network, suitable as the host side of roaming reconciliation.
//
// # Binary encoding
//
// Session records are stored as a compact versioned binary blob. Decode
// rejects unknown versions instead of guessing at their layout.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations), the [Session] model and
// the cookie-facing [Host]. It does NOT read the roaming cookie, verify
// credentials, or decide who may roam. Those belong to the engine.
//
// # What this package must NOT do
//
//   - Import goRoam or any package that does (no upward imports).
//   - Store passwords or roaming secrets in [Session] fields.
package session
