// Package password hashes and verifies the per-tenant credentials that
// account linking checks before claiming an identity.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the cost parameters from the stored hash, so a tenant
// can raise its parameters without invalidating existing credentials.
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters.
//
// This package imports no other goRoam package and never logs its input.
package password
