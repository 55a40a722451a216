package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrCleanupRedisUnavailable = errors.New("cleanup redis unavailable")

// PendingRemoval names an identity awaiting deferred removal from a tenant.
type PendingRemoval struct {
	IdentityID string
	SiteID     string
}

// CleanupQueue is a Redis set of identities marked for deferred removal. The
// background job draining it is owned by the host.
type CleanupQueue struct {
	redis redis.UniversalClient
	key   string
}

func NewCleanupQueue(redisClient redis.UniversalClient, prefix string) *CleanupQueue {
	if prefix == "" {
		prefix = "gr"
	}
	return &CleanupQueue{
		redis: redisClient,
		key:   prefix + ":cleanup",
	}
}

func (q *CleanupQueue) MarkPendingRemoval(ctx context.Context, identityID, siteID string) error {
	if q == nil || q.redis == nil {
		return ErrCleanupRedisUnavailable
	}
	if err := q.redis.SAdd(ctx, q.key, member(identityID, siteID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCleanupRedisUnavailable, err)
	}
	return nil
}

// Pending lists every marked identity.
func (q *CleanupQueue) Pending(ctx context.Context) ([]PendingRemoval, error) {
	if q == nil || q.redis == nil {
		return nil, ErrCleanupRedisUnavailable
	}
	members, err := q.redis.SMembers(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCleanupRedisUnavailable, err)
	}

	out := make([]PendingRemoval, 0, len(members))
	for _, m := range members {
		siteID, identityID, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		out = append(out, PendingRemoval{IdentityID: identityID, SiteID: siteID})
	}
	return out, nil
}

// Done removes a mark once the host has processed it.
func (q *CleanupQueue) Done(ctx context.Context, identityID, siteID string) error {
	if q == nil || q.redis == nil {
		return ErrCleanupRedisUnavailable
	}
	if err := q.redis.SRem(ctx, q.key, member(identityID, siteID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCleanupRedisUnavailable, err)
	}
	return nil
}

func member(identityID, siteID string) string {
	return siteID + "|" + identityID
}
