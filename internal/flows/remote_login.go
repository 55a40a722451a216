package flows

import (
	"context"
	"errors"
	"time"
)

type RemoteLoginToken struct {
	UserID    string
	SiteID    string
	IssuingIP string
	Timestamp int64
	Signature string
}

type RemoteLoginResult struct {
	UserID string
	SiteID string
	Err    error
}

type RemoteLoginMetrics struct {
	Success     int
	Failure     int
	RateLimited int
	Replay      int
}

type RemoteLoginEvents struct {
	RemoteLogin string
}

type RemoteLoginErrors struct {
	EngineNotReady     error
	InvalidToken       error
	IPMismatch         error
	TokenExpired       error
	RateLimited        error
	UserNotFound       error
	BackendUnavailable error
}

type RemoteLoginDeps struct {
	EnforceIPBinding bool
	Expiry           time.Duration
	RateLimitMax     int
	RateLimitWait    time.Duration
	SingleUse        bool

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	TenantIDFromContext func(context.Context) string

	Decode         func(context.Context, string) (RemoteLoginToken, error)
	CheckRateLimit func(context.Context, string, int, time.Duration) (bool, error)
	ConsumeToken   func(context.Context, string, time.Duration) error
	IsConsumed     func(error) bool
	IdentityExists func(context.Context, string) (bool, error)
	Establish      func(context.Context, string) error

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, string, func() map[string]string)

	Metrics RemoteLoginMetrics
	Events  RemoteLoginEvents
	Errors  RemoteLoginErrors
}

// RemoteLoginRateKey is the limiter key for remote-login attempts against an
// identity.
func RemoteLoginRateKey(userID string) string {
	return "remote_login:" + userID
}

// RunRemoteLogin consumes a one-time login token. The checks run in order:
// decode, IP binding, age, attempt limit, single use, identity lookup. The
// attempt counter is only reached by tokens that already passed decoding, IP
// binding and age, so it throttles per identity and not per prober. Every
// failure is terminal; no session is established unless all checks pass.
func RunRemoteLogin(ctx context.Context, tok string, deps RemoteLoginDeps) RemoteLoginResult {
	normalizeRemoteLoginDeps(&deps)

	if deps.Decode == nil || deps.CheckRateLimit == nil || deps.IdentityExists == nil || deps.Establish == nil {
		return RemoteLoginResult{Err: deps.Errors.EngineNotReady}
	}

	tenantID := deps.TenantIDFromContext(ctx)
	ip := deps.ClientIPFromContext(ctx)
	fail := func(p RemoteLoginToken, err error, reason string) RemoteLoginResult {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.RemoteLogin, false, p.UserID, tenantID, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return RemoteLoginResult{UserID: p.UserID, SiteID: p.SiteID, Err: err}
	}

	p, err := deps.Decode(ctx, tok)
	if err != nil {
		return fail(RemoteLoginToken{}, errors.Join(deps.Errors.InvalidToken, err), "decode")
	}

	if deps.EnforceIPBinding && p.IssuingIP != ip {
		return fail(p, deps.Errors.IPMismatch, "ip_mismatch")
	}

	age := deps.Now().Unix() - p.Timestamp
	if age > int64(deps.Expiry/time.Second) {
		return fail(p, deps.Errors.TokenExpired, "expired")
	}

	allowed, err := deps.CheckRateLimit(ctx, RemoteLoginRateKey(p.UserID), deps.RateLimitMax, deps.RateLimitWait)
	if err != nil {
		return fail(p, errors.Join(deps.Errors.RateLimited, deps.Errors.BackendUnavailable, err), "limiter_unavailable")
	}
	if !allowed {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitRateLimit(ctx, "remote_login", tenantID, func() map[string]string {
			return map[string]string{"identity_id": p.UserID}
		})
		return fail(p, deps.Errors.RateLimited, "rate_limited")
	}

	if deps.SingleUse && deps.ConsumeToken != nil {
		if err := deps.ConsumeToken(ctx, p.Signature, deps.Expiry); err != nil {
			if deps.IsConsumed(err) {
				deps.MetricInc(deps.Metrics.Replay)
				return fail(p, deps.Errors.InvalidToken, "replay")
			}
			return fail(p, errors.Join(deps.Errors.InvalidToken, deps.Errors.BackendUnavailable, err), "replay_registry_unavailable")
		}
	}

	exists, err := deps.IdentityExists(ctx, p.UserID)
	if err != nil {
		return fail(p, errors.Join(deps.Errors.UserNotFound, deps.Errors.BackendUnavailable, err), "identity_lookup_failed")
	}
	if !exists {
		return fail(p, deps.Errors.UserNotFound, "user_not_found")
	}

	if err := deps.Establish(ctx, p.UserID); err != nil {
		return fail(p, errors.Join(deps.Errors.BackendUnavailable, err), "establish_failed")
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.RemoteLogin, true, p.UserID, tenantID, nil, func() map[string]string {
		return map[string]string{"site_id": p.SiteID}
	})
	return RemoteLoginResult{UserID: p.UserID, SiteID: p.SiteID}
}

func normalizeRemoteLoginDeps(deps *RemoteLoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.TenantIDFromContext == nil {
		deps.TenantIDFromContext = func(context.Context) string { return "" }
	}
	if deps.IsConsumed == nil {
		deps.IsConsumed = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string, string, func() map[string]string) {}
	}
	if deps.Errors.BackendUnavailable == nil {
		deps.Errors.BackendUnavailable = deps.Errors.EngineNotReady
	}
}
