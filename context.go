package goRoam

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPContextKey struct{}
type tenantIDContextKey struct{}
type requestHostContextKey struct{}
type logoutContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Remote-login tokens
// are bound to it at issue time and compared against it on use.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithTenantID attaches the serving tenant's site ID to ctx.
func WithTenantID(ctx context.Context, siteID string) context.Context {
	return context.WithValue(ctx, tenantIDContextKey{}, siteID)
}

// WithRequestHost overrides the host the roaming domain gate checks. Without
// it the engine uses the request's Host header.
func WithRequestHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, requestHostContextKey{}, host)
}

// WithLogoutInProgress marks the request as an explicit logout. Roaming
// reconciliation takes no action on such requests.
func WithLogoutInProgress(ctx context.Context) context.Context {
	return context.WithValue(ctx, logoutContextKey{}, true)
}

// TenantIDFromContext returns the site ID attached by [WithTenantID].
func TenantIDFromContext(ctx context.Context) string {
	return tenantIDFromContext(ctx)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func tenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	tenantID, _ := ctx.Value(tenantIDContextKey{}).(string)
	return tenantID
}

func requestHost(ctx context.Context, r *http.Request) string {
	if ctx != nil {
		if host, _ := ctx.Value(requestHostContextKey{}).(string); host != "" {
			return host
		}
	}
	if r == nil {
		return ""
	}
	return r.Host
}

func logoutInProgress(ctx context.Context, r *http.Request) bool {
	if ctx != nil {
		if v, _ := ctx.Value(logoutContextKey{}).(bool); v {
			return true
		}
	}
	return r != nil && r.URL != nil && r.URL.Query().Get("action") == "logout"
}

// ClientIP extracts the peer address from r.RemoteAddr without its port.
// Forwarded headers are not trusted here; proxies should set the address
// with [WithClientIP].
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
