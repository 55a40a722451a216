// Package token issues and decodes the short-lived signed tokens used for
// one-time remote login between tenant sites.
//
// # Format
//
// A token is the standard base64 encoding of a JSON envelope:
//
//	{"payload":{"user_id":"..","site_id":"..","timestamp":1700000000,"issuing_ip":".."},"signature":"<hex>"}
//
// The signature is HMAC-SHA256 over the canonical payload bytes, keyed with the
// platform signing secret.
//
// # Architecture boundaries
//
// Decode checks encoding, structure and signature only. Expiry and IP binding
// depend on the remote-login context and are enforced by the Engine.
//
// # What this package must NOT do
//
//   - Persist tokens or track their use.
//   - Distinguish failure kinds to end users (callers map all of them to
//     one coarse category).
package token
