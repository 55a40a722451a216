package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the session backend cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when the session does not exist or has
// passed its absolute lifetime.
var ErrSessionNotFound = errors.New("session not found")

const minSlidingTTL = time.Second

// Store is a Redis-backed session store that handles persistence, absolute
// expiry, sliding idle renewal, and a per-identity index.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	sliding bool
	idleTTL time.Duration
	now     func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace. When sliding is true every successful
// [Store.Get] pushes the key expiry out by idleTTL, never past the absolute
// lifetime recorded in the session.
func NewStore(rdb redis.UniversalClient, prefix string, sliding bool, idleTTL time.Duration) *Store {
	if prefix == "" {
		prefix = "goroam"
	}
	return &Store{
		redis:   rdb,
		prefix:  prefix,
		sliding: sliding,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (s *Store) key(tenantID, sessionID string) string {
	return s.prefix + ":sess:" + normalizeTenantID(tenantID) + ":" + sessionID
}

func (s *Store) identityKey(tenantID, identityID string) string {
	return s.prefix + ":sessu:" + normalizeTenantID(tenantID) + ":" + identityID
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

// Save persists sess until its ExpiresAt and indexes it under its identity.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	lifetime := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if lifetime < minSlidingTTL {
		return fmt.Errorf("%w: session already expired", ErrSessionNotFound)
	}
	ttl := lifetime
	if s.sliding && s.idleTTL > 0 && s.idleTTL < ttl {
		ttl = s.idleTTL
	}

	sessionKey := s.key(sess.TenantID, sess.SessionID)
	indexKey := s.identityKey(sess.TenantID, sess.IdentityID)

	indexTTL, err := s.redis.TTL(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, indexKey, sess.SessionID)
		// The index lives as long as its longest-lived member.
		if indexTTL < lifetime {
			pipe.Expire(ctx, indexKey, lifetime)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session. Sessions past their absolute lifetime are removed and
// reported as [ErrSessionNotFound].
func (s *Store) Get(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	key := s.key(tenantID, sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		_ = s.redis.Del(ctx, key).Err()
		return nil, ErrSessionNotFound
	}
	sess.SessionID = sessionID

	now := s.now()
	if sess.Expired(now.Unix()) {
		if err := s.deleteSessionAndIndex(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	if s.sliding && s.idleTTL > 0 {
		next := s.idleTTL
		if remaining := time.Unix(sess.ExpiresAt, 0).Sub(now); remaining < next {
			next = remaining
		}
		if next < minSlidingTTL {
			next = minSlidingTTL
		}
		if err := s.redis.Expire(ctx, key, next).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, tenantID, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	key := s.key(tenantID, sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	sess.SessionID = sessionID
	return s.deleteSessionAndIndex(ctx, sess)
}

// DeleteAllForIdentity removes every session an identity holds on a tenant.
// A session created while this runs may survive it.
func (s *Store) DeleteAllForIdentity(ctx context.Context, tenantID, identityID string) error {
	indexKey := s.identityKey(tenantID, identityID)

	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.key(tenantID, id))
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs lists the live sessions of an identity on a tenant.
// Index entries whose session key has expired are pruned on the way.
func (s *Store) ActiveSessionIDs(ctx context.Context, tenantID, identityID string) ([]string, error) {
	indexKey := s.identityKey(tenantID, identityID)

	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, s.key(tenantID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	var stale []interface{}
	for i, id := range ids {
		if checks[i].Val() == 1 {
			live = append(live, id)
			continue
		}
		stale = append(stale, id)
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, indexKey, stale...).Err()
	}
	return live, nil
}

// Ping measures a round trip to the session backend.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, sess *Session) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sess.TenantID, sess.SessionID))
		pipe.SRem(ctx, s.identityKey(sess.TenantID, sess.IdentityID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
