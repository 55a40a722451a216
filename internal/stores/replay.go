package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenConsumed          = errors.New("token already consumed")
	ErrReplayRedisUnavailable = errors.New("replay redis unavailable")
)

// ReplayRegistry remembers consumed remote-login token signatures until the
// token could no longer pass its age check anyway.
type ReplayRegistry struct {
	redis  redis.UniversalClient
	prefix string
}

func NewReplayRegistry(redisClient redis.UniversalClient, prefix string) *ReplayRegistry {
	if prefix == "" {
		prefix = "gr"
	}
	return &ReplayRegistry{
		redis:  redisClient,
		prefix: prefix + ":consumed",
	}
}

// Consume records signature as used. It returns ErrTokenConsumed when the
// signature was already recorded within ttl.
func (r *ReplayRegistry) Consume(ctx context.Context, signature string, ttl time.Duration) error {
	if r == nil || r.redis == nil {
		return ErrReplayRedisUnavailable
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	ok, err := r.redis.SetNX(ctx, r.key(signature), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReplayRedisUnavailable, err)
	}
	if !ok {
		return ErrTokenConsumed
	}
	return nil
}

// Keys are hashed so the stored value is not itself a usable signature.
func (r *ReplayRegistry) key(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return r.prefix + ":" + hex.EncodeToString(sum[:])
}
