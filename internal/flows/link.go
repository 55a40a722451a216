package flows

import (
	"context"
	"errors"
	"strings"
)

type LinkIdentity struct {
	ID           string
	Login        string
	Email        string
	PasswordHash string
	SiteID       string
	MainID       string
	Roles        []string
	NetworkAdmin bool
}

type LinkSite struct {
	ID  string
	URL string
}

type LinkResult struct {
	Site     LinkSite
	Identity LinkIdentity
}

type LinkMetrics struct {
	LinkSuccess    int
	LinkFailure    int
	LinkConflict   int
	UnlinkSuccess  int
	UnlinkDenied   int
	CleanupFailure int
}

type LinkEvents struct {
	Link   string
	Unlink string
}

type LinkErrors struct {
	EngineNotReady     error
	InvalidSite        error
	AuthFailed         error
	AlreadyLinked      error
	Unauthorized       error
	IdentityNotFound   error
	BackendUnavailable error
}

type LinkDeps struct {
	RootSiteID string

	TenantIDFromContext func(context.Context) string
	IsNotFound          func(error) bool

	SiteByURL        func(context.Context, string) (LinkSite, error)
	IdentityByID     func(context.Context, string) (LinkIdentity, error)
	IdentityByLogin  func(context.Context, string, string) (LinkIdentity, error)
	IdentityByEmail  func(context.Context, string, string) (LinkIdentity, error)
	VerifyCredential func(context.Context, LinkIdentity, string) (bool, error)
	SetMainID        func(context.Context, string, string) error
	IsElevated       func(context.Context, LinkIdentity) (bool, error)

	// MarkPendingRemoval and ClearPendingRemoval are optional; failures are
	// reported through OnCleanupError and never fail the link or unlink.
	MarkPendingRemoval  func(context.Context, string, string) error
	ClearPendingRemoval func(context.Context, string, string) error
	OnCleanupError      func(context.Context, string, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics LinkMetrics
	Events  LinkEvents
	Errors  LinkErrors
}

// RunLinkAccount links the identity named by usernameOrEmail on the tenant at
// siteURL to primaryID after verifying its credential. Linking an identity
// that already points at primaryID succeeds again.
func RunLinkAccount(ctx context.Context, primaryID, siteURL, usernameOrEmail, password string, deps LinkDeps) (LinkResult, error) {
	normalizeLinkDeps(&deps)

	if deps.SiteByURL == nil || deps.IdentityByLogin == nil || deps.IdentityByEmail == nil ||
		deps.VerifyCredential == nil || deps.SetMainID == nil {
		return LinkResult{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) (LinkResult, error) {
		if errors.Is(err, deps.Errors.AlreadyLinked) {
			deps.MetricInc(deps.Metrics.LinkConflict)
		} else {
			deps.MetricInc(deps.Metrics.LinkFailure)
		}
		deps.EmitAudit(ctx, deps.Events.Link, false, primaryID, deps.TenantIDFromContext(ctx), err, func() map[string]string {
			return map[string]string{"reason": reason, "site_url": siteURL}
		})
		return LinkResult{}, err
	}

	if strings.TrimSpace(primaryID) == "" {
		return fail(deps.Errors.AuthFailed, "missing_primary")
	}

	site, err := deps.SiteByURL(ctx, strings.TrimSpace(siteURL))
	if err != nil {
		if deps.IsNotFound(err) {
			return fail(deps.Errors.InvalidSite, "site_not_found")
		}
		return fail(deps.Errors.BackendUnavailable, "site_lookup_failed")
	}
	if site.ID == deps.RootSiteID {
		return fail(deps.Errors.InvalidSite, "root_site")
	}

	name := strings.TrimSpace(usernameOrEmail)
	if name == "" || password == "" {
		return fail(deps.Errors.AuthFailed, "missing_credentials")
	}

	target, err := deps.IdentityByLogin(ctx, site.ID, name)
	if err != nil && deps.IsNotFound(err) {
		target, err = deps.IdentityByEmail(ctx, site.ID, name)
	}
	if err != nil {
		if deps.IsNotFound(err) {
			return fail(deps.Errors.AuthFailed, "identity_not_found")
		}
		return fail(deps.Errors.BackendUnavailable, "identity_lookup_failed")
	}

	ok, err := deps.VerifyCredential(ctx, target, password)
	if err != nil {
		return fail(deps.Errors.BackendUnavailable, "credential_check_failed")
	}
	if !ok {
		return fail(deps.Errors.AuthFailed, "invalid_credentials")
	}

	if target.MainID != "" && target.MainID != primaryID {
		return fail(deps.Errors.AlreadyLinked, "linked_elsewhere")
	}

	if target.MainID != primaryID {
		if err := deps.SetMainID(ctx, target.ID, primaryID); err != nil {
			return fail(deps.Errors.BackendUnavailable, "store_write_failed")
		}
		target.MainID = primaryID
	}

	// A linked identity is no longer orphaned, so an earlier unlink's mark
	// must not survive.
	if deps.ClearPendingRemoval != nil {
		if err := deps.ClearPendingRemoval(ctx, target.ID, target.SiteID); err != nil {
			deps.MetricInc(deps.Metrics.CleanupFailure)
			deps.OnCleanupError(ctx, target.ID, err)
		}
	}

	deps.MetricInc(deps.Metrics.LinkSuccess)
	deps.EmitAudit(ctx, deps.Events.Link, true, primaryID, deps.TenantIDFromContext(ctx), nil, func() map[string]string {
		return map[string]string{"identity_id": target.ID, "site_id": site.ID}
	})
	return LinkResult{Site: site, Identity: target}, nil
}

// RunUnlinkAccount clears targetID's link. The acting identity must be the
// linked primary or hold network-wide elevation.
func RunUnlinkAccount(ctx context.Context, targetID, actingID string, deps LinkDeps) error {
	normalizeLinkDeps(&deps)

	if deps.IdentityByID == nil || deps.SetMainID == nil {
		return deps.Errors.EngineNotReady
	}

	tenantID := deps.TenantIDFromContext(ctx)
	deny := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.UnlinkDenied)
		deps.EmitAudit(ctx, deps.Events.Unlink, false, actingID, tenantID, err, func() map[string]string {
			return map[string]string{"reason": reason, "identity_id": targetID}
		})
		return err
	}

	if strings.TrimSpace(actingID) == "" {
		return deny(deps.Errors.Unauthorized, "anonymous")
	}

	target, err := deps.IdentityByID(ctx, targetID)
	if err != nil {
		if deps.IsNotFound(err) {
			return deny(deps.Errors.IdentityNotFound, "identity_not_found")
		}
		return deny(deps.Errors.BackendUnavailable, "identity_lookup_failed")
	}

	authorized := target.MainID != "" && target.MainID == actingID
	if !authorized {
		acting, err := deps.IdentityByID(ctx, actingID)
		switch {
		case err == nil:
			elevated, eerr := deps.IsElevated(ctx, acting)
			if eerr != nil {
				return deny(deps.Errors.BackendUnavailable, "elevation_check_failed")
			}
			authorized = elevated
		case deps.IsNotFound(err):
		default:
			return deny(deps.Errors.BackendUnavailable, "identity_lookup_failed")
		}
	}
	if !authorized {
		return deny(deps.Errors.Unauthorized, "not_owner")
	}

	// Nothing to unlink: the identity is a plain local account and must not
	// be queued for removal.
	if target.MainID == "" {
		return nil
	}

	if err := deps.SetMainID(ctx, target.ID, ""); err != nil {
		return deny(deps.Errors.BackendUnavailable, "store_write_failed")
	}

	if deps.MarkPendingRemoval != nil {
		if err := deps.MarkPendingRemoval(ctx, target.ID, target.SiteID); err != nil {
			deps.MetricInc(deps.Metrics.CleanupFailure)
			deps.OnCleanupError(ctx, target.ID, err)
		}
	}

	deps.MetricInc(deps.Metrics.UnlinkSuccess)
	deps.EmitAudit(ctx, deps.Events.Unlink, true, actingID, tenantID, nil, func() map[string]string {
		return map[string]string{"identity_id": target.ID, "site_id": target.SiteID}
	})
	return nil
}

func normalizeLinkDeps(deps *LinkDeps) {
	if deps.TenantIDFromContext == nil {
		deps.TenantIDFromContext = func(context.Context) string { return "" }
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsElevated == nil {
		deps.IsElevated = func(_ context.Context, id LinkIdentity) (bool, error) { return id.NetworkAdmin, nil }
	}
	if deps.OnCleanupError == nil {
		deps.OnCleanupError = func(context.Context, string, error) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Errors.BackendUnavailable == nil {
		deps.Errors.BackendUnavailable = deps.Errors.EngineNotReady
	}
	if deps.Errors.IdentityNotFound == nil {
		deps.Errors.IdentityNotFound = deps.Errors.Unauthorized
	}
}
