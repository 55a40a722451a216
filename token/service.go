package token

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/MrEthical07/goRoam/internal/sign"
)

var (
	// ErrMalformed is returned when the token is not valid base64 or JSON.
	ErrMalformed = errors.New("token malformed")
	// ErrStructure is returned when the envelope or payload is incomplete.
	ErrStructure = errors.New("token structure invalid")
	// ErrSignatureMismatch is returned when the signature does not verify.
	ErrSignatureMismatch = errors.New("token signature mismatch")
	// ErrNoKey is returned when the key source yields an empty secret.
	ErrNoKey = errors.New("token signing key not configured")
)

// KeyFunc returns the current signing secret. It is consulted on every call
// so a rotated secret takes effect without rebuilding the service.
type KeyFunc func(ctx context.Context) ([]byte, error)

// Payload is the signed content of a remote-login token.
type Payload struct {
	UserID    string `json:"user_id"`
	SiteID    string `json:"site_id"`
	Timestamp int64  `json:"timestamp"`
	IssuingIP string `json:"issuing_ip"`
}

// Decoded is a verified token payload and the signature it carried.
type Decoded struct {
	Payload
	Signature string
}

// Option configures a [Service].
type Option func(*Service)

// WithClock overrides the time source used to stamp tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service generates and decodes remote-login tokens. It holds no mutable
// state and is safe for concurrent use.
type Service struct {
	key KeyFunc
	now func() time.Time
}

// NewService returns a token service signing with the secret returned by key.
func NewService(key KeyFunc, opts ...Option) *Service {
	s := &Service{key: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StaticKey adapts a fixed secret to a [KeyFunc].
func StaticKey(secret []byte) KeyFunc {
	return func(context.Context) ([]byte, error) {
		return secret, nil
	}
}

// Generate builds and signs a token for userID on siteID, bound to ip.
func (s *Service) Generate(ctx context.Context, userID, siteID, ip string) (string, error) {
	key, err := s.signingKey(ctx)
	if err != nil {
		return "", err
	}

	data, _, err := sign.Seal(key, Payload{
		UserID:    userID,
		SiteID:    siteID,
		Timestamp: s.now().Unix(),
		IssuingIP: ip,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode verifies tok and returns its payload. It does not check age or IP.
func (s *Service) Decode(ctx context.Context, tok string) (*Decoded, error) {
	key, err := s.signingKey(ctx)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(tok)
	if err != nil || len(data) == 0 {
		return nil, ErrMalformed
	}

	var p Payload
	sig, err := sign.Open(key, data, &p)
	if err != nil {
		return nil, mapError(err)
	}
	if p.UserID == "" || p.SiteID == "" || p.Timestamp <= 0 {
		return nil, ErrStructure
	}

	return &Decoded{Payload: p, Signature: sig}, nil
}

func (s *Service) signingKey(ctx context.Context) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, ErrNoKey
	}
	key, err := s.key(ctx)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	return key, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, sign.ErrMalformed):
		return ErrMalformed
	case errors.Is(err, sign.ErrStructure):
		return ErrStructure
	case errors.Is(err, sign.ErrSignatureMismatch):
		return ErrSignatureMismatch
	case errors.Is(err, sign.ErrNoKey):
		return ErrNoKey
	default:
		return err
	}
}
