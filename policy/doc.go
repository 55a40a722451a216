// Package policy decides roaming eligibility and network elevation with OPA
// Rego policies evaluated in-process.
//
// The default policy grants both to identities flagged network_admin or
// holding the "network_admin" role. Hosts replace it with their own module in
// package goroam.roaming defining boolean rules eligible and elevated.
package policy
