package goRoam

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRoamingCookieIssued  = "roaming_cookie_issued"
	auditEventRoamingCookieCleared = "roaming_cookie_cleared"
	auditEventRoamingRejected      = "roaming_cookie_rejected"
	auditEventSessionEstablished   = "roaming_session_established"
	auditEventSessionTakeover      = "roaming_session_takeover"
	auditEventForcedLogout         = "roaming_forced_logout"
	auditEventReauthBypassed       = "reauth_bypassed"
	auditEventLinkAccount          = "account_link"
	auditEventUnlinkAccount        = "account_unlink"
	auditEventLoginURLIssued       = "login_url_issued"
	auditEventRemoteLogin          = "remote_login"
	auditEventSignupReserved       = "signup_reserved"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the coarse error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidSite      AuditErrorCode = "invalid_site"
	auditErrAuthFailed       AuditErrorCode = "auth_failed"
	auditErrAlreadyLinked    AuditErrorCode = "already_linked"
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrIPMismatch       AuditErrorCode = "ip_mismatch"
	auditErrTokenExpired     AuditErrorCode = "token_expired"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrUserNotFound     AuditErrorCode = "user_not_found"
	auditErrReservedIdentity AuditErrorCode = "reserved_identity"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantID string,
	metadataBuilder func() map[string]string,
) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantID, ErrRateLimited, func() map[string]string {
		base := map[string]string{"scope": scope}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

// The order matters: remote-login failures join several sentinels and the
// first match is the most specific one.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidSite):
		return auditErrInvalidSite
	case errors.Is(err, ErrAuthFailed):
		return auditErrAuthFailed
	case errors.Is(err, ErrAlreadyLinked):
		return auditErrAlreadyLinked
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrIPMismatch):
		return auditErrIPMismatch
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrReservedIdentity):
		return auditErrReservedIdentity
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, e.now().Sub(start))
	}
}
