// Package goRoam carries an authenticated session across the tenants of a
// multi-site platform that share one parent domain.
//
// Three mechanisms cooperate:
//
//   - A signed roaming cookie bound to the parent domain. It is issued when a
//     roaming-eligible identity logs in locally and reconciled against the
//     local session on every request by [Engine.OnValidateSession].
//   - One-time remote-login links minted by [Engine.GenerateLoginURL] and
//     consumed by [Engine.RemoteLogin]. Tokens are short-lived, bound to the
//     issuing client IP, and rate limited per identity.
//   - Account linking. A primary identity on the root tenant can claim
//     per-tenant identities after proving their credentials
//     ([Engine.LinkAccount]), and the link can be removed by its owner or a
//     network-elevated identity ([Engine.UnlinkAccount]).
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// goRoam is the public surface. It exposes [Engine], [Builder], [Config],
// [Settings] and the collaborator interfaces the host implements
// ([IdentityStore], [SiteDirectory], [SessionHost]). Flow orchestration,
// Redis layouts and the signing envelope live under internal/ and are never
// exported.
//
// # What this package must NOT do
//
//   - Own identity storage or the local session itself. Both belong to the host.
//   - Log or audit token values, cookie values, passwords or secrets.
//   - Import any sub-package that re-imports goRoam (no import cycles).
package goRoam
