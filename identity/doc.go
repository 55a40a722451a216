// Package identity provides [goRoam.IdentityStore] and [goRoam.SiteDirectory]
// implementations: an in-memory store for tests and single-process demos, and
// a Postgres store on database/sql with the pgx driver.
//
// Both stores hash credentials with a [password.Hasher] and resolve sites by
// their normalized base URL (lower-case scheme and host, no path, no trailing
// slash), so "https://Blog.Example.com/" and "https://blog.example.com" name
// the same tenant.
package identity
