package cookie

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRoam/internal/sign"
)

// DefaultName is the roaming cookie name used when none is configured.
const DefaultName = "goroam_roaming"

var (
	// ErrMalformed is returned for values that are not a decodable envelope.
	ErrMalformed = errors.New("roaming cookie malformed")
	// ErrSignatureMismatch is returned when the signature does not verify.
	ErrSignatureMismatch = errors.New("roaming cookie signature mismatch")
	// ErrExpired is returned when expires_at is not in the future.
	ErrExpired = errors.New("roaming cookie expired")
	// ErrNoKey is returned when the key source yields an empty secret.
	ErrNoKey = errors.New("roaming cookie key not configured")
)

// KeyFunc returns the current signing secret.
type KeyFunc func(ctx context.Context) ([]byte, error)

// Payload is the signed content of the roaming cookie.
type Payload struct {
	UserID    string `json:"user_id"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

// Codec issues and verifies roaming cookie values. Stateless; safe for
// concurrent use.
type Codec struct {
	key KeyFunc
	now func() time.Time
}

// NewCodec returns a codec signing with the secret returned by key. A nil
// now defaults to time.Now.
func NewCodec(key KeyFunc, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{key: key, now: now}
}

// Issue builds a signed cookie value for userID valid for lifetime.
func (c *Codec) Issue(ctx context.Context, userID string, lifetime time.Duration) (string, Payload, error) {
	key, err := c.signingKey(ctx)
	if err != nil {
		return "", Payload{}, err
	}

	now := c.now()
	p := Payload{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(lifetime).Unix(),
		Nonce:     uuid.NewString(),
	}
	data, _, err := sign.Seal(key, p)
	if err != nil {
		return "", Payload{}, err
	}
	return url.QueryEscape(string(data)), p, nil
}

// Decode verifies a cookie value and returns its payload.
func (c *Codec) Decode(ctx context.Context, value string) (Payload, error) {
	key, err := c.signingKey(ctx)
	if err != nil {
		return Payload{}, err
	}

	raw, err := url.QueryUnescape(value)
	if err != nil || raw == "" {
		return Payload{}, ErrMalformed
	}

	var p Payload
	if _, err := sign.Open(key, []byte(raw), &p); err != nil {
		switch {
		case errors.Is(err, sign.ErrSignatureMismatch):
			return Payload{}, ErrSignatureMismatch
		case errors.Is(err, sign.ErrNoKey):
			return Payload{}, ErrNoKey
		default:
			return Payload{}, ErrMalformed
		}
	}
	if p.UserID == "" || p.ExpiresAt == 0 {
		return Payload{}, ErrMalformed
	}
	if p.ExpiresAt <= c.now().Unix() {
		return Payload{}, ErrExpired
	}
	return p, nil
}

func (c *Codec) signingKey(ctx context.Context) ([]byte, error) {
	if c == nil || c.key == nil {
		return nil, ErrNoKey
	}
	key, err := c.key(ctx)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	return key, nil
}

// New returns the Set-Cookie form of a roaming cookie value.
func New(name, value, domain string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		Expires:  expires,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expired returns a cookie that deletes name on the client.
func Expired(name, domain string) *http.Cookie {
	c := New(name, "", domain, time.Unix(0, 0))
	c.MaxAge = -1
	return c
}
