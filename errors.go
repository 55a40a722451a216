package goRoam

import (
	"errors"

	"github.com/MrEthical07/goRoam/token"
)

var (
	// ErrInvalidSite is returned when a site URL does not resolve to a tenant.
	ErrInvalidSite = errors.New("invalid site")
	// ErrAuthFailed is returned when the target identity is unknown or its credential does not verify.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrAlreadyLinked is returned when the target identity is linked to a different primary.
	ErrAlreadyLinked = errors.New("account already linked to another user")
	// ErrUnauthorized is returned when the acting identity may not unlink the target.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken is returned for any remote-login token that fails decoding.
	// The specific cause is wrapped beneath it (token.ErrMalformed,
	// token.ErrStructure, token.ErrSignatureMismatch).
	ErrInvalidToken = errors.New("invalid token")
	// ErrIPMismatch is returned when a token is presented from another address.
	ErrIPMismatch = errors.New("token ip mismatch")
	// ErrTokenExpired is returned when a token is older than the remote-login window.
	ErrTokenExpired = errors.New("token expired")
	// ErrRateLimited is returned when remote-login attempts for an identity exceed the window budget.
	ErrRateLimited = errors.New("remote login rate limited")
	// ErrUserNotFound is returned when the token's identity no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrIdentityNotFound is returned by IdentityStore implementations for missing records.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrSiteNotFound is returned by SiteDirectory implementations for unknown sites.
	ErrSiteNotFound = errors.New("site not found")
	// ErrReservedIdentity is returned by signup validation when the login or
	// email belongs to a roaming identity.
	ErrReservedIdentity = errors.New("login reserved by a roaming identity")
	// ErrEngineNotReady is returned when the engine is nil or missing a collaborator.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBackendUnavailable wraps cache or store failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// tokenError keeps the decode cause inspectable while matching ErrInvalidToken.
type tokenError struct {
	cause error
}

func (e *tokenError) Error() string { return ErrInvalidToken.Error() + ": " + e.cause.Error() }

func (e *tokenError) Is(target error) bool { return target == ErrInvalidToken }

func (e *tokenError) Unwrap() error { return e.cause }

func invalidToken(cause error) error {
	if cause == nil {
		cause = token.ErrMalformed
	}
	return &tokenError{cause: cause}
}
