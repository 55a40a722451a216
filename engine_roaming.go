package goRoam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goRoam/cookie"
	"github.com/MrEthical07/goRoam/internal/flows"
)

// IsRoamingEligible describes the isroamingeligible operation and its observable behavior.
//
// IsRoamingEligible evaluates the configured eligibility predicate for identity.
// IsRoamingEligible may return an error when the predicate itself fails.
func (e *Engine) IsRoamingEligible(ctx context.Context, identity Identity) (bool, error) {
	if e == nil || e.eligibility == nil {
		return false, ErrEngineNotReady
	}
	return e.eligibility(ctx, identity)
}

// OnLogin describes the onlogin operation and its observable behavior.
//
// OnLogin runs after the host authenticated identityID locally. When the
// identity is roaming-eligible and the request host is inside the bound
// domain, a fresh roaming cookie signed with the current secret is set on w.
// OnLogin may return an error when the identity store, settings provider or eligibility predicate fails.
func (e *Engine) OnLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, identityID string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	if !e.config.Roaming.Enabled {
		return nil
	}
	if r != nil && !cookie.Matches(requestHost(ctx, r), e.boundDomain) {
		e.metricInc(MetricRoamingDomainSkipped)
		return nil
	}

	identity, found, err := e.loadIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}

	eligible, err := e.IsRoamingEligible(ctx, identity)
	if err != nil || !eligible {
		return err
	}

	s, err := e.Settings(ctx)
	if err != nil {
		return err
	}
	value, payload, err := e.cookies.Issue(ctx, identity.ID, s.RoamingCookieExpiry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	http.SetCookie(w, cookie.New(e.config.Roaming.CookieName, value, e.boundDomain, time.Unix(payload.ExpiresAt, 0)))
	e.metricInc(MetricRoamingCookieIssued)
	e.emitAudit(ctx, auditEventRoamingCookieIssued, true, identity.ID, identity.SiteID, nil, nil)
	return nil
}

// OnLogout describes the onlogout operation and its observable behavior.
//
// OnLogout deletes the roaming cookie. The host calls it before tearing down
// the local session.
// OnLogout never fails.
func (e *Engine) OnLogout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if e == nil || !e.config.Roaming.Enabled {
		return nil
	}
	if r != nil {
		if _, err := r.Cookie(e.config.Roaming.CookieName); errors.Is(err, http.ErrNoCookie) {
			return nil
		}
	}
	http.SetCookie(w, cookie.Expired(e.config.Roaming.CookieName, e.boundDomain))
	e.metricInc(MetricRoamingCookieCleared)
	e.emitAudit(ctx, auditEventRoamingCookieCleared, true, "", "", nil, func() map[string]string {
		return map[string]string{"reason": "logout"}
	})
	return nil
}

// OnValidateSession describes the onvalidatesession operation and its observable behavior.
//
// OnValidateSession reconciles the local session with the roaming cookie on
// every request. Requests whose host is outside the bound domain are skipped.
// Cookie validation failures never surface as errors; they are reported in
// the returned decision and the offending cookie is deleted.
// OnValidateSession may return [ErrBackendUnavailable] when the session host, identity store or settings fail.
func (e *Engine) OnValidateSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (RoamingDecision, error) {
	if e == nil || e.sessions == nil || e.identities == nil {
		return RoamingDecision{}, ErrEngineNotReady
	}
	start := e.now()
	defer e.observeLatency(MetricValidateSessionLatency, start)

	if !e.config.Roaming.Enabled || !cookie.Matches(requestHost(ctx, r), e.boundDomain) {
		e.metricInc(MetricRoamingDomainSkipped)
		return RoamingDecision{Skipped: true}, nil
	}

	read, err := e.readRoamingCookie(ctx, r)
	if err != nil {
		return RoamingDecision{}, err
	}

	local, ok, err := e.sessions.CurrentIdentity(ctx, r)
	if err != nil {
		return RoamingDecision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		local = ""
	}

	res := flows.RunValidateSession(ctx, flows.ValidateSessionInput{
		Cookie:           read,
		LogoutInProgress: logoutInProgress(ctx, r),
		LocalIdentityID:  local,
	}, e.validateSessionDeps(w, r))

	decision := RoamingDecision{
		State:         RoamingState(res.State),
		Reason:        RejectReason(res.Reason),
		IdentityID:    res.IdentityID,
		Action:        RoamingAction(res.Action),
		CookieCleared: res.CookieCleared,
	}
	if res.Err != nil {
		if errors.Is(res.Err, ErrBackendUnavailable) {
			return decision, res.Err
		}
		return decision, fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
	return decision, nil
}

// MaybeBypassReauth describes the maybebypassreauth operation and its observable behavior.
//
// MaybeBypassReauth reports whether a reauthentication prompt on r can be
// skipped. It returns the redirect target when a local session already exists,
// the request asks for reauth (reauth=1) and carries a redirect_to that stays
// inside the bound domain.
// MaybeBypassReauth may return an error when the session host fails.
func (e *Engine) MaybeBypassReauth(ctx context.Context, r *http.Request) (string, bool, error) {
	if e == nil || e.sessions == nil {
		return "", false, ErrEngineNotReady
	}
	if r == nil || r.URL == nil {
		return "", false, nil
	}
	q := r.URL.Query()
	if q.Get("reauth") != "1" {
		return "", false, nil
	}
	target := q.Get("redirect_to")
	if target == "" || !e.safeRedirect(target) {
		return "", false, nil
	}

	identityID, ok, err := e.sessions.CurrentIdentity(ctx, r)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return "", false, nil
	}

	e.metricInc(MetricReauthBypassed)
	e.emitAudit(ctx, auditEventReauthBypassed, true, identityID, "", nil, nil)
	return target, true, nil
}

// OnSignupValidate describes the onsignupvalidate operation and its observable behavior.
//
// OnSignupValidate rejects a new local account whose login or email matches a
// roaming-eligible identity on the root tenant, so a local account cannot
// shadow a roaming identity.
// OnSignupValidate returns [ErrReservedIdentity] on a match.
func (e *Engine) OnSignupValidate(ctx context.Context, login, email string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	root := e.config.Platform.RootSiteID

	check := func(lookup func(context.Context, string, string) (Identity, error), value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			return nil
		}
		identity, err := lookup(ctx, root, value)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		eligible, err := e.IsRoamingEligible(ctx, identity)
		if err != nil {
			return err
		}
		if eligible {
			e.metricInc(MetricSignupReserved)
			e.emitAudit(ctx, auditEventSignupReserved, false, identity.ID, "", ErrReservedIdentity, nil)
			return ErrReservedIdentity
		}
		return nil
	}

	if err := check(e.identities.IdentityByLogin, login); err != nil {
		return err
	}
	return check(e.identities.IdentityByEmail, email)
}

func (e *Engine) readRoamingCookie(ctx context.Context, r *http.Request) (flows.RoamingCookieRead, error) {
	if r == nil {
		return flows.RoamingCookieRead{State: flows.RoamingNoCookie}, nil
	}
	c, err := r.Cookie(e.config.Roaming.CookieName)
	if err != nil || c.Value == "" {
		return flows.RoamingCookieRead{State: flows.RoamingNoCookie}, nil
	}

	payload, err := e.cookies.Decode(ctx, c.Value)
	switch {
	case err == nil:
		return flows.RoamingCookieRead{State: flows.RoamingValidCookie, UserID: payload.UserID}, nil
	case errors.Is(err, cookie.ErrExpired):
		return flows.RoamingCookieRead{State: flows.RoamingRejected, Reason: flows.RoamingRejectExpired}, nil
	case errors.Is(err, cookie.ErrSignatureMismatch):
		return flows.RoamingCookieRead{State: flows.RoamingRejected, Reason: flows.RoamingRejectSignatureMismatch}, nil
	case errors.Is(err, cookie.ErrMalformed):
		return flows.RoamingCookieRead{State: flows.RoamingRejected, Reason: flows.RoamingRejectMalformed}, nil
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrEngineNotReady):
		return flows.RoamingCookieRead{}, err
	default:
		return flows.RoamingCookieRead{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

func (e *Engine) validateSessionDeps(w http.ResponseWriter, r *http.Request) flows.ValidateSessionDeps {
	return flows.ValidateSessionDeps{
		TenantIDFromContext: tenantIDFromContext,
		IdentityExists: func(ctx context.Context, id string) (bool, error) {
			_, found, err := e.loadIdentity(ctx, id)
			return found, err
		},
		IsEligible: func(ctx context.Context, id string) (bool, error) {
			identity, found, err := e.loadIdentity(ctx, id)
			if err != nil || !found {
				return false, err
			}
			return e.IsRoamingEligible(ctx, identity)
		},
		Terminate: func(ctx context.Context) error {
			return e.sessions.Terminate(ctx, w, r)
		},
		Establish: func(ctx context.Context, id string) error {
			return e.sessions.Establish(ctx, w, r, id)
		},
		ClearCookie: func(context.Context) {
			http.SetCookie(w, cookie.Expired(e.config.Roaming.CookieName, e.boundDomain))
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: flows.ValidateSessionMetrics{
			CookieRejected:     int(MetricRoamingCookieRejected),
			CookieCleared:      int(MetricRoamingCookieCleared),
			SessionEstablished: int(MetricSessionEstablished),
			SessionTakeover:    int(MetricSessionTakeover),
			ForcedLogout:       int(MetricForcedLogout),
		},
		Events: flows.ValidateSessionEvents{
			CookieRejected:     auditEventRoamingRejected,
			SessionEstablished: auditEventSessionEstablished,
			SessionTakeover:    auditEventSessionTakeover,
			ForcedLogout:       auditEventForcedLogout,
		},
	}
}

// Relative paths and absolute URLs on the apex or a subdomain of it are
// accepted. This is stricter than the cookie gate's substring match.
func (e *Engine) safeRedirect(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(target, "//")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	apex := strings.TrimPrefix(e.boundDomain, ".")
	return apex != "" && (host == apex || strings.HasSuffix(host, e.boundDomain))
}
