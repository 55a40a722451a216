package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestSettingsCacheRoundTripAndExpiry(t *testing.T) {
	rdb, mr := newTestRedis(t)
	c := NewSettingsCache(rdb, "", "net1")
	ctx := context.Background()

	if _, err := c.Get(ctx); !errors.Is(err, ErrSettingsNotCached) {
		t.Fatalf("expected ErrSettingsNotCached, got %v", err)
	}
	if err := c.Put(ctx, []byte(`{"a":1}`), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mr.Exists("gr:settings:net1") {
		t.Fatalf("expected settings key to exist")
	}
	data, err := c.Get(ctx)
	if err != nil || string(data) != `{"a":1}` {
		t.Fatalf("Get = %q, %v", data, err)
	}

	mr.FastForward(time.Hour + time.Second)
	if _, err := c.Get(ctx); !errors.Is(err, ErrSettingsNotCached) {
		t.Fatalf("expected entry to expire, got %v", err)
	}
}

func TestSettingsCacheDelete(t *testing.T) {
	rdb, _ := newTestRedis(t)
	c := NewSettingsCache(rdb, "p", "")
	ctx := context.Background()

	_ = c.Put(ctx, []byte("x"), time.Minute)
	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx); !errors.Is(err, ErrSettingsNotCached) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestSettingsCacheRedisDown(t *testing.T) {
	rdb, mr := newTestRedis(t)
	c := NewSettingsCache(rdb, "", "")
	mr.Close()

	if _, err := c.Get(context.Background()); !errors.Is(err, ErrSettingsRedisUnavailable) {
		t.Fatalf("expected ErrSettingsRedisUnavailable, got %v", err)
	}
}

func TestReplayRegistryRejectsSecondUse(t *testing.T) {
	rdb, mr := newTestRedis(t)
	r := NewReplayRegistry(rdb, "")
	ctx := context.Background()

	if err := r.Consume(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := r.Consume(ctx, "abc", time.Minute); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed, got %v", err)
	}
	if err := r.Consume(ctx, "other", time.Minute); err != nil {
		t.Fatalf("distinct signature: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := r.Consume(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("expected registry entry to lapse, got %v", err)
	}
}

func TestReplayRegistryDoesNotStoreRawSignature(t *testing.T) {
	rdb, mr := newTestRedis(t)
	r := NewReplayRegistry(rdb, "")

	if err := r.Consume(context.Background(), "deadbeef", time.Minute); err != nil {
		t.Fatalf("consume: %v", err)
	}
	for _, k := range mr.Keys() {
		if k == "gr:consumed:deadbeef" {
			t.Fatalf("raw signature used as key")
		}
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one key, got %v", mr.Keys())
	}
}

func TestCleanupQueueMarkPendingDone(t *testing.T) {
	rdb, _ := newTestRedis(t)
	q := NewCleanupQueue(rdb, "")
	ctx := context.Background()

	if err := q.MarkPendingRemoval(ctx, "42", "3"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := q.MarkPendingRemoval(ctx, "42", "3"); err != nil {
		t.Fatalf("mark twice: %v", err)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].IdentityID != "42" || pending[0].SiteID != "3" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	if err := q.Done(ctx, "42", "3"); err != nil {
		t.Fatalf("done: %v", err)
	}
	pending, _ = q.Pending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected empty queue, got %+v", pending)
	}
}

func TestCleanupQueueRedisDown(t *testing.T) {
	rdb, mr := newTestRedis(t)
	q := NewCleanupQueue(rdb, "")
	mr.Close()

	if err := q.MarkPendingRemoval(context.Background(), "1", "2"); !errors.Is(err, ErrCleanupRedisUnavailable) {
		t.Fatalf("expected ErrCleanupRedisUnavailable, got %v", err)
	}
}

func TestNonceStoreSingleUsePerIdentity(t *testing.T) {
	rdb, _ := newTestRedis(t)
	s := NewNonceStore(rdb, "t", time.Minute)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, "admin")
	if err != nil {
		t.Fatalf("IssueNonce failed: %v", err)
	}
	if err := s.VerifyNonce(ctx, "member", nonce); !errors.Is(err, ErrNonceInvalid) {
		t.Fatalf("expected nonce bound to its identity, got %v", err)
	}
	if err := s.VerifyNonce(ctx, "admin", nonce); err != nil {
		t.Fatalf("VerifyNonce failed: %v", err)
	}
	if err := s.VerifyNonce(ctx, "admin", nonce); !errors.Is(err, ErrNonceInvalid) {
		t.Fatalf("expected second use to fail, got %v", err)
	}
}

func TestNonceStoreExpiry(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewNonceStore(rdb, "t", time.Minute)
	ctx := context.Background()

	nonce, err := s.IssueNonce(ctx, "admin")
	if err != nil {
		t.Fatalf("IssueNonce failed: %v", err)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := s.VerifyNonce(ctx, "admin", nonce); !errors.Is(err, ErrNonceInvalid) {
		t.Fatalf("expected expired nonce to fail, got %v", err)
	}
}

func TestNonceStoreRedisDown(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewNonceStore(rdb, "", 0)
	mr.Close()

	if _, err := s.IssueNonce(context.Background(), "admin"); !errors.Is(err, ErrNonceRedisUnavailable) {
		t.Fatalf("expected ErrNonceRedisUnavailable, got %v", err)
	}
}
