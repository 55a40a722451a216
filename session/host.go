package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the local session cookie used when HostConfig leaves
// CookieName empty.
const DefaultCookieName = "goroam_session"

// HostConfig describes the local session of one tenant.
type HostConfig struct {
	// TenantID scopes every key this host writes.
	TenantID string
	// TenantFromRequest, when set, overrides TenantID per request so one
	// process can serve several tenants. An empty result falls back to
	// TenantID.
	TenantFromRequest func(*http.Request) string
	CookieName string
	// CookieDomain is empty for a host-only cookie.
	CookieDomain string
	Path         string
	Secure       bool
	SameSite     http.SameSite
	// Lifetime is the absolute session lifetime.
	Lifetime time.Duration
}

// Host keeps the local login of one tenant in a cookie that carries only an
// opaque session ID. It satisfies goRoam.SessionHost.
type Host struct {
	store *Store
	cfg   HostConfig
}

// NewHost returns a Host writing to store.
func NewHost(store *Store, cfg HostConfig) (*Host, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	if cfg.Lifetime <= 0 {
		return nil, errors.New("session lifetime must be > 0")
	}
	return &Host{store: store, cfg: cfg}, nil
}

// CurrentIdentity returns the identity of the session named by the request
// cookie. A missing or unknown session is reported as ok=false with no error.
func (h *Host) CurrentIdentity(ctx context.Context, r *http.Request) (string, bool, error) {
	sessionID := h.sessionID(r)
	if sessionID == "" {
		return "", false, nil
	}

	sess, err := h.store.Get(ctx, h.tenant(r), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return sess.IdentityID, true, nil
}

// Establish starts a new session for identityID. Any session named by the
// request cookie is discarded first, so the session ID always rotates.
func (h *Host) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, identityID string) error {
	if identityID == "" {
		return errors.New("identity id is required")
	}
	if err := h.store.Delete(ctx, h.tenant(r), h.sessionID(r)); err != nil {
		return err
	}

	now := h.store.now()
	sess := &Session{
		SessionID:  uuid.NewString(),
		IdentityID: identityID,
		TenantID:   h.tenant(r),
		ClientIP:   peerIP(r),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(h.cfg.Lifetime).Unix(),
	}
	if err := h.store.Save(ctx, sess); err != nil {
		return err
	}

	http.SetCookie(w, h.cookie(sess.SessionID, now.Add(h.cfg.Lifetime), int(h.cfg.Lifetime/time.Second)))
	// Later reads on this request see the new session.
	if r != nil {
		replaceCookie(r, h.cfg.CookieName, sess.SessionID)
	}
	return nil
}

// Terminate deletes the current session and expires its cookie. It is
// idempotent.
func (h *Host) Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.store.Delete(ctx, h.tenant(r), h.sessionID(r)); err != nil {
		return err
	}
	http.SetCookie(w, h.cookie("", time.Unix(0, 0), -1))
	if r != nil {
		replaceCookie(r, h.cfg.CookieName, "")
	}
	return nil
}

func (h *Host) tenant(r *http.Request) string {
	if h.cfg.TenantFromRequest != nil && r != nil {
		if tenant := h.cfg.TenantFromRequest(r); tenant != "" {
			return tenant
		}
	}
	return h.cfg.TenantID
}

func (h *Host) sessionID(r *http.Request) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(h.cfg.CookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Host) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Domain:   h.cfg.CookieDomain,
		Path:     h.cfg.Path,
		Expires:  expires,
		MaxAge:   maxAge,
		Secure:   h.cfg.Secure,
		HttpOnly: true,
		SameSite: h.cfg.SameSite,
	}
}

func replaceCookie(r *http.Request, name, value string) {
	kept := make([]string, 0, len(r.Cookies())+1)
	for _, c := range r.Cookies() {
		if c.Name != name {
			kept = append(kept, c.Name+"="+c.Value)
		}
	}
	if value != "" {
		kept = append(kept, name+"="+value)
	}
	r.Header.Del("Cookie")
	if len(kept) > 0 {
		r.Header.Set("Cookie", strings.Join(kept, "; "))
	}
}

func peerIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
