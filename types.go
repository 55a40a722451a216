package goRoam

import (
	"context"
	"net/http"
)

// Identity is a per-tenant account record as seen by the engine.
//
// ID is unique platform-wide. Login and Email are unique within SiteID.
// MainID is empty or names the primary identity this one is linked to.
type Identity struct {
	ID           string
	Login        string
	Email        string
	PasswordHash string
	SiteID       string
	MainID       string
	Roles        []string
	NetworkAdmin bool
}

// Linked reports whether the identity is linked to a primary.
func (i Identity) Linked() bool {
	return i.MainID != ""
}

// Site is a tenant within the platform.
type Site struct {
	ID string
	// URL is the tenant base URL without a trailing slash, e.g.
	// "https://blog.example.com".
	URL string
}

// LinkedAccount is the projection returned by link operations and listed in
// the linked-account view.
type LinkedAccount struct {
	SiteID     string `json:"site_id"`
	SiteURL    string `json:"site_url"`
	UserLogin  string `json:"user_login"`
	UserEmail  string `json:"user_email"`
	IdentityID string `json:"identity_id"`
}

// IdentityStore is the host's identity table. Lookups return
// [ErrIdentityNotFound] for missing records.
//
// Implementations must be safe for concurrent use.
type IdentityStore interface {
	IdentityByID(ctx context.Context, id string) (Identity, error)
	IdentityByLogin(ctx context.Context, siteID, login string) (Identity, error)
	IdentityByEmail(ctx context.Context, siteID, email string) (Identity, error)
	VerifyCredential(ctx context.Context, identity Identity, password string) (bool, error)
	SetMainID(ctx context.Context, identityID, mainID string) error
	LinkedTo(ctx context.Context, mainID string) ([]Identity, error)
}

// SiteDirectory resolves tenants. Lookups return [ErrSiteNotFound] for
// unknown sites.
type SiteDirectory interface {
	SiteByURL(ctx context.Context, rawURL string) (Site, error)
	SiteByID(ctx context.Context, id string) (Site, error)
}

// SessionHost is the host platform's local session mechanism for the current
// tenant.
type SessionHost interface {
	// CurrentIdentity returns the locally authenticated identity, if any.
	CurrentIdentity(ctx context.Context, r *http.Request) (identityID string, ok bool, err error)
	// Establish authenticates identityID locally on this request.
	Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, identityID string) error
	// Terminate tears down the local session completely.
	Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// CleanupQueue receives identities that should be removed from a tenant by
// a background job the host owns.
type CleanupQueue interface {
	MarkPendingRemoval(ctx context.Context, identityID, siteID string) error
}

// CleanupWithdrawer is an optional CleanupQueue extension. When the queue
// implements it, a successful link withdraws any mark left by an earlier
// unlink of the same identity.
type CleanupWithdrawer interface {
	Done(ctx context.Context, identityID, siteID string) error
}

// EligibilityFunc decides whether an identity may carry a session across
// tenants.
type EligibilityFunc func(ctx context.Context, identity Identity) (bool, error)

// DefaultEligibility grants roaming to network administrators only.
func DefaultEligibility(_ context.Context, identity Identity) (bool, error) {
	return identity.NetworkAdmin, nil
}

// RoamingState is the decoded state of the roaming cookie on a request.
type RoamingState int

const (
	RoamingNoCookie RoamingState = iota
	RoamingValidCookie
	RoamingRejected
)

func (s RoamingState) String() string {
	switch s {
	case RoamingNoCookie:
		return "no_cookie"
	case RoamingValidCookie:
		return "valid_cookie"
	case RoamingRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RejectReason says why a present roaming cookie was rejected.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectMalformed
	RejectSignatureMismatch
	RejectExpired
)

func (r RejectReason) String() string {
	switch r {
	case RejectMalformed:
		return "malformed"
	case RejectSignatureMismatch:
		return "signature_mismatch"
	case RejectExpired:
		return "expired"
	default:
		return "none"
	}
}

// RoamingAction is what the engine did to the local session.
type RoamingAction int

const (
	ActionNone RoamingAction = iota
	// ActionEstablish authenticated the cookie identity on an anonymous request.
	ActionEstablish
	// ActionTakeover tore down a different local identity, then established
	// the cookie identity.
	ActionTakeover
	// ActionForceLogout tore down a roaming-eligible local session that had
	// no valid cookie.
	ActionForceLogout
)

func (a RoamingAction) String() string {
	switch a {
	case ActionEstablish:
		return "establish"
	case ActionTakeover:
		return "takeover"
	case ActionForceLogout:
		return "force_logout"
	default:
		return "none"
	}
}

// RoamingDecision reports the outcome of [Engine.OnValidateSession].
type RoamingDecision struct {
	// Skipped is true when the request host is outside the bound domain or
	// roaming is disabled.
	Skipped    bool
	State      RoamingState
	Reason     RejectReason
	IdentityID string
	Action     RoamingAction
	// CookieCleared is true when a rejected or orphaned cookie was deleted.
	CookieCleared bool
}

// RemoteLoginCode is the coarse failure category placed in the redirect's
// error parameter.
type RemoteLoginCode string

const (
	RemoteLoginOK               RemoteLoginCode = ""
	RemoteLoginInvalidToken     RemoteLoginCode = "invalid_token"
	RemoteLoginIPMismatch       RemoteLoginCode = "ip_mismatch"
	RemoteLoginTokenExpired     RemoteLoginCode = "token_expired"
	RemoteLoginRateLimitedCode  RemoteLoginCode = "rate_limited"
	RemoteLoginUserNotFoundCode RemoteLoginCode = "user_not_found"
)

// RemoteLoginResult is the outcome of [Engine.RemoteLogin].
type RemoteLoginResult struct {
	// RedirectURL is where the client must be sent, on success or failure.
	RedirectURL string
	// Code is empty on success.
	Code RemoteLoginCode
	// IdentityID is set on success.
	IdentityID string
	// Err carries the internal cause. It must not be shown to the client.
	Err error
}

// OK reports whether a session was established.
func (r RemoteLoginResult) OK() bool {
	return r.Code == RemoteLoginOK && r.Err == nil
}
