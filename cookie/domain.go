package cookie

import "strings"

// BoundDomain derives the cookie domain from the network-wide domain setting:
// lower-cased and dot-prefixed so it matches every subdomain.
func BoundDomain(network string) string {
	d := strings.ToLower(strings.TrimSpace(network))
	d = strings.TrimLeft(d, ".")
	if d == "" {
		return ""
	}
	return "." + d
}

// Matches reports whether a cookie bound to domain may be exchanged on host.
// The match is a case-insensitive substring test of the dot-prefixed domain
// against the host, plus the bare apex itself. Ports are ignored.
func Matches(host, domain string) bool {
	if domain == "" {
		return false
	}
	h := strings.ToLower(stripPort(strings.TrimSpace(host)))
	d := strings.ToLower(domain)
	if h == "" {
		return false
	}
	if strings.Contains(h, d) {
		return true
	}
	return h == strings.TrimPrefix(d, ".")
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i >= 0 {
			return host[1:i]
		}
		return host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		return host[:i]
	}
	return host
}
