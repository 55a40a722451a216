package httpapi

import (
	"net"
	"net/http"
	"strings"

	goRoam "github.com/MrEthical07/goRoam"
)

// ContextOptions configures [RequestContext].
type ContextOptions struct {
	// TenantID resolves the site serving the request. Nil leaves the tenant
	// unset, which disables the engine's tenant checks.
	TenantID func(*http.Request) string
	// TrustForwardedFor takes the client IP and host from X-Forwarded-For and
	// X-Forwarded-Host. Enable it only behind a proxy that overwrites them.
	TrustForwardedFor bool
	// LogoutPath marks requests to this path as an explicit logout.
	LogoutPath string
}

// RequestContext attaches the client IP, request host, tenant and logout
// marker the engine expects to find in the request context.
func RequestContext(opts ContextOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := goRoam.ClientIP(r)
			host := r.Host
			if opts.TrustForwardedFor {
				if fwd := forwardedFor(r); fwd != "" {
					ip = fwd
				}
				if fh := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fh != "" {
					host = fh
				}
			}
			ctx = goRoam.WithClientIP(ctx, ip)
			ctx = goRoam.WithRequestHost(ctx, host)

			if opts.TenantID != nil {
				if tenant := opts.TenantID(r); tenant != "" {
					ctx = goRoam.WithTenantID(ctx, tenant)
				}
			}
			if opts.LogoutPath != "" && r.URL.Path == opts.LogoutPath {
				ctx = goRoam.WithLogoutInProgress(ctx)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromSites resolves the tenant by looking the request origin up in
// sites. Unknown origins resolve to "".
func TenantFromSites(sites goRoam.SiteDirectory) func(*http.Request) string {
	return func(r *http.Request) string {
		scheme := "https"
		if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
			scheme = "http"
		}
		site, err := sites.SiteByURL(r.Context(), scheme+"://"+r.Host)
		if err != nil {
			return ""
		}
		return site.ID
	}
}

// forwardedFor returns the left-most valid address in X-Forwarded-For.
func forwardedFor(r *http.Request) string {
	raw := r.Header.Get("X-Forwarded-For")
	if raw == "" {
		return ""
	}
	first, _, _ := strings.Cut(raw, ",")
	first = strings.TrimSpace(first)
	if net.ParseIP(first) == nil {
		return ""
	}
	return first
}
