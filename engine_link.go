package goRoam

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/MrEthical07/goRoam/internal/flows"
)

// LinkAccount describes the linkaccount operation and its observable behavior.
//
// LinkAccount links the identity named by usernameOrEmail on the tenant at
// siteURL to primaryID. The login is tried first, then the email, both within
// that tenant. Linking an identity that already belongs to primaryID succeeds
// again without writing.
// LinkAccount returns [ErrInvalidSite], [ErrAuthFailed] or [ErrAlreadyLinked] for user-facing failures.
func (e *Engine) LinkAccount(ctx context.Context, primaryID, siteURL, usernameOrEmail, password string) (*LinkedAccount, error) {
	if e == nil || e.identities == nil || e.sites == nil {
		return nil, ErrEngineNotReady
	}

	res, err := flows.RunLinkAccount(ctx, primaryID, siteURL, usernameOrEmail, password, e.linkDeps())
	if err != nil {
		return nil, err
	}
	return &LinkedAccount{
		SiteID:     res.Site.ID,
		SiteURL:    res.Site.URL,
		UserLogin:  res.Identity.Login,
		UserEmail:  res.Identity.Email,
		IdentityID: res.Identity.ID,
	}, nil
}

// UnlinkAccount describes the unlinkaccount operation and its observable behavior.
//
// UnlinkAccount clears targetID's link. actingID must be the linked primary or
// a network-elevated identity. When a cleanup queue is configured the target
// is also marked for deferred removal from its tenant.
// UnlinkAccount returns [ErrUnauthorized] otherwise, including for unknown targets.
func (e *Engine) UnlinkAccount(ctx context.Context, targetID, actingID string) error {
	if e == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	return flows.RunUnlinkAccount(ctx, targetID, actingID, e.linkDeps())
}

// LinkedAccounts describes the linkedaccounts operation and its observable behavior.
//
// LinkedAccounts lists every identity linked to primaryID outside the root
// tenant, ordered by site ID.
// LinkedAccounts may return [ErrBackendUnavailable] when the store fails.
func (e *Engine) LinkedAccounts(ctx context.Context, primaryID string) ([]LinkedAccount, error) {
	if e == nil || e.identities == nil || e.sites == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(primaryID) == "" {
		return nil, nil
	}

	linked, err := e.identities.LinkedTo(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]LinkedAccount, 0, len(linked))
	for _, identity := range linked {
		if identity.SiteID == e.config.Platform.RootSiteID || identity.MainID != primaryID {
			continue
		}
		site, err := e.sites.SiteByID(ctx, identity.SiteID)
		if err != nil {
			if errors.Is(err, ErrSiteNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		out = append(out, LinkedAccount{
			SiteID:     site.ID,
			SiteURL:    site.URL,
			UserLogin:  identity.Login,
			UserEmail:  identity.Email,
			IdentityID: identity.ID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

// GenerateLoginURL describes the generateloginurl operation and its observable behavior.
//
// GenerateLoginURL mints a remote-login token for identityID on siteID, bound
// to the client IP in ctx, and returns
// <site>/login?action=remote_login&token=<token>.
// GenerateLoginURL returns [ErrInvalidSite] or [ErrUserNotFound] when the pair does not resolve.
func (e *Engine) GenerateLoginURL(ctx context.Context, identityID, siteID string) (string, error) {
	if e == nil || e.identities == nil || e.sites == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}

	site, err := e.sites.SiteByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			return "", ErrInvalidSite
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	identity, found, err := e.loadIdentity(ctx, identityID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrUserNotFound
	}
	if identity.SiteID != site.ID {
		return "", ErrInvalidSite
	}

	tok, err := e.tokens.Generate(ctx, identity.ID, site.ID, clientIPFromContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricLoginURLIssued)
	e.emitAudit(ctx, auditEventLoginURLIssued, true, identity.ID, site.ID, nil, nil)
	return remoteLoginURL(site.URL, e.config.Platform.LoginPath, tok), nil
}

func remoteLoginURL(base, loginPath, tok string) string {
	q := url.Values{}
	q.Set("action", "remote_login")
	q.Set("token", tok)
	return strings.TrimRight(base, "/") + loginPath + "?" + q.Encode()
}

func (e *Engine) linkDeps() flows.LinkDeps {
	deps := flows.LinkDeps{
		RootSiteID:          e.config.Platform.RootSiteID,
		TenantIDFromContext: tenantIDFromContext,
		IsNotFound:          isNotFound,
		SiteByURL: func(ctx context.Context, raw string) (flows.LinkSite, error) {
			site, err := e.sites.SiteByURL(ctx, raw)
			if err != nil {
				return flows.LinkSite{}, err
			}
			return flows.LinkSite{ID: site.ID, URL: site.URL}, nil
		},
		IdentityByID: func(ctx context.Context, id string) (flows.LinkIdentity, error) {
			identity, err := e.identities.IdentityByID(ctx, id)
			return toLinkIdentity(identity), err
		},
		IdentityByLogin: func(ctx context.Context, siteID, login string) (flows.LinkIdentity, error) {
			identity, err := e.identities.IdentityByLogin(ctx, siteID, login)
			return toLinkIdentity(identity), err
		},
		IdentityByEmail: func(ctx context.Context, siteID, email string) (flows.LinkIdentity, error) {
			identity, err := e.identities.IdentityByEmail(ctx, siteID, email)
			return toLinkIdentity(identity), err
		},
		VerifyCredential: func(ctx context.Context, id flows.LinkIdentity, password string) (bool, error) {
			return e.identities.VerifyCredential(ctx, fromLinkIdentity(id), password)
		},
		SetMainID: e.identities.SetMainID,
		IsElevated: func(ctx context.Context, id flows.LinkIdentity) (bool, error) {
			return e.elevation(ctx, fromLinkIdentity(id))
		},
		OnCleanupError: func(_ context.Context, identityID string, err error) {
			e.logger.Warn().Err(err).Str("identity_id", identityID).Msg("cleanup queue update failed")
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Metrics: flows.LinkMetrics{
			LinkSuccess:    int(MetricLinkSuccess),
			LinkFailure:    int(MetricLinkFailure),
			LinkConflict:   int(MetricLinkConflict),
			UnlinkSuccess:  int(MetricUnlinkSuccess),
			UnlinkDenied:   int(MetricUnlinkDenied),
			CleanupFailure: int(MetricCleanupFailure),
		},
		Events: flows.LinkEvents{
			Link:   auditEventLinkAccount,
			Unlink: auditEventUnlinkAccount,
		},
		Errors: flows.LinkErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidSite:        ErrInvalidSite,
			AuthFailed:         ErrAuthFailed,
			AlreadyLinked:      ErrAlreadyLinked,
			Unauthorized:       ErrUnauthorized,
			IdentityNotFound:   ErrUnauthorized,
			BackendUnavailable: ErrBackendUnavailable,
		},
	}
	if e.cleanup != nil {
		deps.MarkPendingRemoval = e.cleanup.MarkPendingRemoval
		if w, ok := e.cleanup.(CleanupWithdrawer); ok {
			deps.ClearPendingRemoval = w.Done
		}
	}
	return deps
}

func toLinkIdentity(i Identity) flows.LinkIdentity {
	return flows.LinkIdentity{
		ID:           i.ID,
		Login:        i.Login,
		Email:        i.Email,
		PasswordHash: i.PasswordHash,
		SiteID:       i.SiteID,
		MainID:       i.MainID,
		Roles:        i.Roles,
		NetworkAdmin: i.NetworkAdmin,
	}
}

func fromLinkIdentity(i flows.LinkIdentity) Identity {
	return Identity{
		ID:           i.ID,
		Login:        i.Login,
		Email:        i.Email,
		PasswordHash: i.PasswordHash,
		SiteID:       i.SiteID,
		MainID:       i.MainID,
		Roles:        i.Roles,
		NetworkAdmin: i.NetworkAdmin,
	}
}
