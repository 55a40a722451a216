// Package flows contains pure-function orchestrators for the roaming engine's
// request-time operations: session reconciliation against the roaming cookie,
// account link and unlink, and remote-login token consumption.
//
// Each flow function (RunValidateSession, RunLinkAccount, RunRemoteLogin,
// etc.) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies, so every branch can be exercised
// with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions decide and sequence. Cookie and token codecs, the rate
// limiter, Redis registries, the identity store and the host session all stay
// owned by the Engine and reach flows only as function fields.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRoam (to avoid import cycles).
//   - Perform I/O directly.
package flows
