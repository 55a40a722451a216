// Package cookie encodes, verifies and scopes the roaming cookie that carries
// an authenticated session between tenant sites of one tenant group.
//
// The cookie value is the URL-encoded JSON envelope
//
//	{"payload":{"user_id":"..","issued_at":..,"expires_at":..,"nonce":".."},"signature":"<hex>"}
//
// signed with HMAC-SHA256 under the platform secret. The cookie is always
// Secure, HttpOnly, SameSite=Lax, path "/", and scoped to the wildcard
// tenant-group domain returned by [BoundDomain].
package cookie
