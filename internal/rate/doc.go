// Package rate provides the Redis-backed attempt counter used to throttle
// remote-login attempts.
//
// # Window semantics
//
// Fixed-window counters keyed by identity. The first hit in a window creates
// the key with a TTL equal to the window; later hits INCR it. Once the count
// reaches the ceiling further attempts are denied without incrementing, so a
// denied caller never extends its own window.
//
// Key prefix:
//   - rl: remote login per target identity
//
// # Concurrency
//
// Check and increment are two round-trips with no lock. Concurrent requests
// for the same key may lose an increment or read a slightly stale count; the
// limiter is coarse abuse mitigation, not exact accounting.
//
// # What this package must NOT do
//
//   - Decide what is being throttled (callers build the key).
//   - Be imported outside the goRoam module.
package rate
