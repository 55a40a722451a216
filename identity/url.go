package identity

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidSiteURL is returned for site URLs without a scheme and host.
var ErrInvalidSiteURL = errors.New("invalid site url")

// NormalizeSiteURL reduces raw to "<scheme>://<host>" in lower case. A bare
// host is read as https.
func NormalizeSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidSiteURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidSiteURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidSiteURL
	}
	return scheme + "://" + strings.ToLower(u.Host), nil
}
