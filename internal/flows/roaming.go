package flows

import (
	"context"
)

type RoamingState int

const (
	RoamingNoCookie RoamingState = iota
	RoamingValidCookie
	RoamingRejected
)

type RoamingReject int

const (
	RoamingRejectNone RoamingReject = iota
	RoamingRejectMalformed
	RoamingRejectSignatureMismatch
	RoamingRejectExpired
)

type RoamingAction int

const (
	RoamingActionNone RoamingAction = iota
	RoamingActionEstablish
	RoamingActionTakeover
	RoamingActionForceLogout
)

// RoamingCookieRead is the decoded roaming cookie for one request.
type RoamingCookieRead struct {
	State  RoamingState
	Reason RoamingReject
	UserID string
}

type ValidateSessionInput struct {
	Cookie           RoamingCookieRead
	LogoutInProgress bool
	// LocalIdentityID is empty when the request is not locally authenticated.
	LocalIdentityID string
}

type ValidateSessionResult struct {
	State         RoamingState
	Reason        RoamingReject
	IdentityID    string
	Action        RoamingAction
	CookieCleared bool
	Err           error
}

type ValidateSessionMetrics struct {
	CookieRejected     int
	CookieCleared      int
	SessionEstablished int
	SessionTakeover    int
	ForcedLogout       int
}

type ValidateSessionEvents struct {
	CookieRejected     string
	SessionEstablished string
	SessionTakeover    string
	ForcedLogout       string
}

type ValidateSessionDeps struct {
	TenantIDFromContext func(context.Context) string

	IdentityExists func(context.Context, string) (bool, error)
	IsEligible     func(context.Context, string) (bool, error)
	Terminate      func(context.Context) error
	Establish      func(context.Context, string) error
	ClearCookie    func(context.Context)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics ValidateSessionMetrics
	Events  ValidateSessionEvents
}

// RunValidateSession reconciles the local session against the roaming cookie.
//
// A valid cookie is authoritative: an anonymous request is authenticated as
// the cookie identity and a different local identity is torn down first. When
// no valid cookie is present, a roaming-eligible local session is terminated.
// Nothing happens while a logout is in progress.
func RunValidateSession(ctx context.Context, in ValidateSessionInput, deps ValidateSessionDeps) ValidateSessionResult {
	normalizeValidateSessionDeps(&deps)

	res := ValidateSessionResult{
		State:      in.Cookie.State,
		Reason:     in.Cookie.Reason,
		IdentityID: in.LocalIdentityID,
	}
	if in.LogoutInProgress {
		return res
	}

	tenantID := deps.TenantIDFromContext(ctx)
	local := in.LocalIdentityID
	valid := in.Cookie.State == RoamingValidCookie

	if in.Cookie.State == RoamingRejected {
		deps.MetricInc(deps.Metrics.CookieRejected)
		deps.EmitAudit(ctx, deps.Events.CookieRejected, false, local, tenantID, nil, func() map[string]string {
			return map[string]string{"reason": rejectReasonLabel(in.Cookie.Reason)}
		})
		deps.ClearCookie(ctx)
		deps.MetricInc(deps.Metrics.CookieCleared)
		res.CookieCleared = true
	}

	if valid {
		if local == in.Cookie.UserID {
			return res
		}

		exists, err := deps.IdentityExists(ctx, in.Cookie.UserID)
		if err != nil {
			res.Err = err
			return res
		}
		if !exists {
			deps.ClearCookie(ctx)
			deps.MetricInc(deps.Metrics.CookieCleared)
			res.CookieCleared = true
			valid = false
		}
	}

	if valid {
		action := RoamingActionEstablish
		if local != "" {
			if err := deps.Terminate(ctx); err != nil {
				res.Err = err
				return res
			}
			action = RoamingActionTakeover
		}
		if err := deps.Establish(ctx, in.Cookie.UserID); err != nil {
			res.Err = err
			if action == RoamingActionTakeover {
				res.Action = RoamingActionForceLogout
				res.IdentityID = ""
			}
			return res
		}

		res.Action = action
		res.IdentityID = in.Cookie.UserID
		if action == RoamingActionTakeover {
			deps.MetricInc(deps.Metrics.SessionTakeover)
			deps.EmitAudit(ctx, deps.Events.SessionTakeover, true, in.Cookie.UserID, tenantID, nil, func() map[string]string {
				return map[string]string{"previous_identity": local}
			})
		} else {
			deps.MetricInc(deps.Metrics.SessionEstablished)
			deps.EmitAudit(ctx, deps.Events.SessionEstablished, true, in.Cookie.UserID, tenantID, nil, nil)
		}
		return res
	}

	if local == "" {
		return res
	}

	eligible, err := deps.IsEligible(ctx, local)
	if err != nil {
		res.Err = err
		return res
	}
	if !eligible {
		return res
	}

	if err := deps.Terminate(ctx); err != nil {
		res.Err = err
		return res
	}
	res.Action = RoamingActionForceLogout
	res.IdentityID = ""
	deps.MetricInc(deps.Metrics.ForcedLogout)
	deps.EmitAudit(ctx, deps.Events.ForcedLogout, true, local, tenantID, nil, func() map[string]string {
		return map[string]string{"cookie_state": cookieStateLabel(in.Cookie.State)}
	})
	return res
}

func rejectReasonLabel(r RoamingReject) string {
	switch r {
	case RoamingRejectMalformed:
		return "malformed"
	case RoamingRejectSignatureMismatch:
		return "signature_mismatch"
	case RoamingRejectExpired:
		return "expired"
	default:
		return "none"
	}
}

func cookieStateLabel(s RoamingState) string {
	switch s {
	case RoamingValidCookie:
		return "orphaned"
	case RoamingRejected:
		return "rejected"
	default:
		return "absent"
	}
}

func normalizeValidateSessionDeps(deps *ValidateSessionDeps) {
	if deps.TenantIDFromContext == nil {
		deps.TenantIDFromContext = func(context.Context) string { return "" }
	}
	if deps.IdentityExists == nil {
		deps.IdentityExists = func(context.Context, string) (bool, error) { return true, nil }
	}
	if deps.IsEligible == nil {
		deps.IsEligible = func(context.Context, string) (bool, error) { return false, nil }
	}
	if deps.Terminate == nil {
		deps.Terminate = func(context.Context) error { return nil }
	}
	if deps.Establish == nil {
		deps.Establish = func(context.Context, string) error { return nil }
	}
	if deps.ClearCookie == nil {
		deps.ClearCookie = func(context.Context) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
