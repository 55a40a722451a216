package goRoam

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goRoam/internal/flows"
	"github.com/MrEthical07/goRoam/internal/stores"
)

// RemoteLogin describes the remotelogin operation and its observable behavior.
//
// RemoteLogin consumes a one-time login token presented on r and, when every
// check passes, establishes a local session for the token's identity. The
// result always carries the redirect the client must follow: the target
// site's home on success, or the error location with ?error=<code>. The code
// is one of invalid_token, ip_mismatch, token_expired, rate_limited or
// user_not_found; the finer cause stays in RemoteLoginResult.Err.
func (e *Engine) RemoteLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, tok string) RemoteLoginResult {
	if e == nil || e.identities == nil || e.sessions == nil || e.tokens == nil || e.limiter == nil {
		return RemoteLoginResult{
			RedirectURL: "/",
			Code:        RemoteLoginInvalidToken,
			Err:         ErrEngineNotReady,
		}
	}

	s, err := e.Settings(ctx)
	if err != nil {
		return e.remoteLoginFailure(err)
	}

	res := flows.RunRemoteLogin(ctx, tok, e.remoteLoginDeps(w, r, s))
	if res.Err != nil {
		return e.remoteLoginFailure(res.Err)
	}

	return RemoteLoginResult{
		RedirectURL: e.siteHome(ctx, res.SiteID),
		IdentityID:  res.UserID,
	}
}

// ResetRemoteLoginAttempts describes the resetremoteloginattempts operation and its observable behavior.
//
// ResetRemoteLoginAttempts clears the remote-login attempt counter for identityID.
// ResetRemoteLoginAttempts may return [ErrBackendUnavailable] when Redis fails.
func (e *Engine) ResetRemoteLoginAttempts(ctx context.Context, identityID string) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	if err := e.limiter.Reset(ctx, flows.RemoteLoginRateKey(identityID)); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

// RemoteLoginAttempts describes the remoteloginattempts operation and its observable behavior.
//
// RemoteLoginAttempts returns the attempts counted for identityID in the current window.
func (e *Engine) RemoteLoginAttempts(ctx context.Context, identityID string) (int, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.limiter.Attempts(ctx, flows.RemoteLoginRateKey(identityID))
	if err != nil {
		return 0, errors.Join(ErrBackendUnavailable, err)
	}
	return n, nil
}

func (e *Engine) remoteLoginDeps(w http.ResponseWriter, r *http.Request, s Settings) flows.RemoteLoginDeps {
	deps := flows.RemoteLoginDeps{
		EnforceIPBinding:    e.config.RemoteLogin.EnforceIPBinding,
		Expiry:              s.RemoteLoginTokenExpiry,
		RateLimitMax:        s.RateLimitMax,
		RateLimitWait:       s.RateLimitWait,
		SingleUse:           e.replay != nil,
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		TenantIDFromContext: tenantIDFromContext,
		Decode: func(ctx context.Context, tok string) (flows.RemoteLoginToken, error) {
			decoded, err := e.tokens.Decode(ctx, tok)
			if err != nil {
				return flows.RemoteLoginToken{}, invalidToken(err)
			}
			// A token minted for one tenant never opens a session on another.
			if tenant := tenantIDFromContext(ctx); tenant != "" && tenant != decoded.SiteID {
				return flows.RemoteLoginToken{}, invalidToken(ErrInvalidSite)
			}
			return flows.RemoteLoginToken{
				UserID:    decoded.UserID,
				SiteID:    decoded.SiteID,
				IssuingIP: decoded.IssuingIP,
				Timestamp: decoded.Timestamp,
				Signature: decoded.Signature,
			}, nil
		},
		CheckRateLimit: e.limiter.CheckAndIncrement,
		IsConsumed: func(err error) bool {
			return errors.Is(err, stores.ErrTokenConsumed)
		},
		IdentityExists: func(ctx context.Context, id string) (bool, error) {
			_, found, err := e.loadIdentity(ctx, id)
			return found, err
		},
		Establish: func(ctx context.Context, id string) error {
			return e.sessions.Establish(ctx, w, r, id)
		},
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: flows.RemoteLoginMetrics{
			Success:     int(MetricRemoteLoginSuccess),
			Failure:     int(MetricRemoteLoginFailure),
			RateLimited: int(MetricRemoteLoginRateLimited),
			Replay:      int(MetricRemoteLoginReplay),
		},
		Events: flows.RemoteLoginEvents{
			RemoteLogin: auditEventRemoteLogin,
		},
		Errors: flows.RemoteLoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidToken:       ErrInvalidToken,
			IPMismatch:         ErrIPMismatch,
			TokenExpired:       ErrTokenExpired,
			RateLimited:        ErrRateLimited,
			UserNotFound:       ErrUserNotFound,
			BackendUnavailable: ErrBackendUnavailable,
		},
	}
	if e.replay != nil {
		deps.ConsumeToken = func(ctx context.Context, sig string, ttl time.Duration) error {
			err := e.replay.Consume(ctx, sig, ttl)
			if err != nil && !errors.Is(err, stores.ErrTokenConsumed) {
				e.logger.Error().Err(err).Msg("consumed-token registry unavailable")
			}
			return err
		}
	}
	return deps
}

func (e *Engine) remoteLoginFailure(err error) RemoteLoginResult {
	code := remoteLoginCode(err)
	return RemoteLoginResult{
		RedirectURL: e.remoteLoginErrorURL(code),
		Code:        code,
		Err:         err,
	}
}

// remoteLoginCode maps a failure to its coarse redirect code. Anything that is
// not one of the named categories reports invalid_token.
func remoteLoginCode(err error) RemoteLoginCode {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return RemoteLoginInvalidToken
	case errors.Is(err, ErrIPMismatch):
		return RemoteLoginIPMismatch
	case errors.Is(err, ErrTokenExpired):
		return RemoteLoginTokenExpired
	case errors.Is(err, ErrRateLimited):
		return RemoteLoginRateLimitedCode
	case errors.Is(err, ErrUserNotFound):
		return RemoteLoginUserNotFoundCode
	default:
		return RemoteLoginInvalidToken
	}
}

func (e *Engine) remoteLoginErrorURL(code RemoteLoginCode) string {
	base := e.config.RemoteLogin.ErrorRedirectURL
	if base == "" {
		base = e.config.Platform.LoginPath
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "error=" + url.QueryEscape(string(code))
}

func (e *Engine) siteHome(ctx context.Context, siteID string) string {
	site, err := e.sites.SiteByID(ctx, siteID)
	if err != nil || site.URL == "" {
		return e.config.Platform.HomePath
	}
	return strings.TrimRight(site.URL, "/") + e.config.Platform.HomePath
}
