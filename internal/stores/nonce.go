package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNonceInvalid          = errors.New("nonce invalid or already used")
	ErrNonceRedisUnavailable = errors.New("nonce redis unavailable")
)

// NonceStore issues single-use form nonces bound to one identity.
type NonceStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewNonceStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *NonceStore {
	if prefix == "" {
		prefix = "gr"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &NonceStore{
		redis:  redisClient,
		prefix: prefix + ":nonce",
		ttl:    ttl,
	}
}

func (s *NonceStore) IssueNonce(ctx context.Context, identityID string) (string, error) {
	if s == nil || s.redis == nil {
		return "", ErrNonceRedisUnavailable
	}
	nonce := uuid.NewString()
	if err := s.redis.Set(ctx, s.key(identityID, nonce), 1, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNonceRedisUnavailable, err)
	}
	return nonce, nil
}

// VerifyNonce consumes nonce. A nonce verifies at most once and only for the
// identity it was issued to.
func (s *NonceStore) VerifyNonce(ctx context.Context, identityID, nonce string) error {
	if s == nil || s.redis == nil {
		return ErrNonceRedisUnavailable
	}
	if identityID == "" || nonce == "" {
		return ErrNonceInvalid
	}
	n, err := s.redis.Del(ctx, s.key(identityID, nonce)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNonceRedisUnavailable, err)
	}
	if n == 0 {
		return ErrNonceInvalid
	}
	return nil
}

func (s *NonceStore) key(identityID, nonce string) string {
	sum := sha256.Sum256([]byte(identityID + "|" + nonce))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}
