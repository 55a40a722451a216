package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type storeFixture struct {
	store *Store
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	now   time.Time
}

func newStoreFixture(t *testing.T, sliding bool, idle time.Duration) *storeFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := &storeFixture{mr: mr, rdb: rdb, now: time.Unix(1_700_000_000, 0)}
	f.store = NewStore(rdb, "rt", sliding, idle)
	f.store.now = func() time.Time { return f.now }
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return f
}

func (f *storeFixture) session(id, identityID string, lifetime time.Duration) *Session {
	return &Session{
		SessionID:  id,
		IdentityID: identityID,
		TenantID:   "2",
		ClientIP:   "203.0.113.10",
		CreatedAt:  f.now.Unix(),
		ExpiresAt:  f.now.Add(lifetime).Unix(),
	}
}

func TestEncodeDecode(t *testing.T) {
	in := &Session{IdentityID: "alice", TenantID: "2", ClientIP: "::1", CreatedAt: 10, ExpiresAt: 20}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Decode([]byte{99})
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(&Session{IdentityID: "alice"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
}

func TestEncodeRejectsLongFields(t *testing.T) {
	_, err := Encode(&Session{IdentityID: strings.Repeat("x", 256)})
	if err == nil || !strings.Contains(err.Error(), "identityID too long") {
		t.Fatalf("expected identityID length error, got %v", err)
	}
}

// FuzzSessionDecode checks that arbitrary input never panics the decoder.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(&Session{IdentityID: "user1", TenantID: "tenant1", ClientIP: "10.0.0.1", CreatedAt: 1700000000, ExpiresAt: 1700003600})
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:10])
	}
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		if s == nil {
			t.Fatal("nil session without error")
		}
	})
}

func TestSaveGetDelete(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	ctx := context.Background()
	sess := f.session("sid-1", "alice", time.Hour)

	if err := f.store.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := f.store.Get(ctx, "2", "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SessionID != "sid-1" || got.IdentityID != "alice" || got.ClientIP != "203.0.113.10" {
		t.Fatalf("unexpected session %+v", got)
	}
	if ttl := f.mr.TTL(f.store.key("2", "sid-1")); ttl != time.Hour {
		t.Fatalf("expected key ttl 1h, got %v", ttl)
	}

	if err := f.store.Delete(ctx, "2", "sid-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := f.store.Delete(ctx, "2", "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := f.store.Get(ctx, "2", "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if f.mr.Exists(f.store.identityKey("2", "alice")) {
		t.Fatal("expected identity index to be emptied")
	}
}

func TestSessionsAreTenantScoped(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	ctx := context.Background()

	if err := f.store.Save(ctx, f.session("sid-1", "alice", time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := f.store.Get(ctx, "3", "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session to be invisible to another tenant, got %v", err)
	}
}

func TestSaveRejectsExpiredSession(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	sess := f.session("sid-old", "alice", -time.Minute)
	if err := f.store.Save(context.Background(), sess); err == nil {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestGetEnforcesAbsoluteLifetime(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	ctx := context.Background()

	if err := f.store.Save(ctx, f.session("sid-1", "alice", time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	f.now = f.now.Add(time.Hour)

	if _, err := f.store.Get(ctx, "2", "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	if f.mr.Exists(f.store.key("2", "sid-1")) {
		t.Fatal("expected expired session key to be deleted")
	}
}

func TestGetSlidesIdleExpiry(t *testing.T) {
	f := newStoreFixture(t, true, 10*time.Minute)
	ctx := context.Background()
	key := f.store.key("2", "sid-1")

	if err := f.store.Save(ctx, f.session("sid-1", "alice", time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := f.mr.TTL(key); ttl != 10*time.Minute {
		t.Fatalf("expected idle ttl 10m, got %v", ttl)
	}

	f.mr.FastForward(9 * time.Minute)
	f.now = f.now.Add(9 * time.Minute)
	if _, err := f.store.Get(ctx, "2", "sid-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ttl := f.mr.TTL(key); ttl != 10*time.Minute {
		t.Fatalf("expected renewed ttl 10m, got %v", ttl)
	}

	// Renewal never extends past the absolute lifetime.
	f.now = f.now.Add(46 * time.Minute)
	if _, err := f.store.Get(ctx, "2", "sid-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ttl := f.mr.TTL(key); ttl != 5*time.Minute {
		t.Fatalf("expected ttl capped at 5m, got %v", ttl)
	}
}

func TestDeleteAllForIdentity(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	ctx := context.Background()

	for _, id := range []string{"sid-1", "sid-2"} {
		if err := f.store.Save(ctx, f.session(id, "alice", time.Hour)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := f.store.Save(ctx, f.session("sid-3", "bob", time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := f.store.DeleteAllForIdentity(ctx, "2", "alice"); err != nil {
		t.Fatalf("DeleteAllForIdentity failed: %v", err)
	}
	ids, err := f.store.ActiveSessionIDs(ctx, "2", "alice")
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no alice sessions, got %v (%v)", ids, err)
	}
	ids, err = f.store.ActiveSessionIDs(ctx, "2", "bob")
	if err != nil || len(ids) != 1 || ids[0] != "sid-3" {
		t.Fatalf("expected bob session to survive, got %v (%v)", ids, err)
	}
}

func TestActiveSessionIDsPrunesExpiredEntries(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	ctx := context.Background()

	if err := f.store.Save(ctx, f.session("short", "alice", time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := f.store.Save(ctx, f.session("long", "alice", time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := f.mr.TTL(f.store.identityKey("2", "alice")); ttl != time.Hour {
		t.Fatalf("expected index to follow the longest session, got %v", ttl)
	}

	f.mr.FastForward(2 * time.Minute)
	ids, err := f.store.ActiveSessionIDs(ctx, "2", "alice")
	if err != nil {
		t.Fatalf("ActiveSessionIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "long" {
		t.Fatalf("expected only the long session, got %v", ids)
	}
	members, err := f.mr.Members(f.store.identityKey("2", "alice"))
	if err != nil || len(members) != 1 {
		t.Fatalf("expected stale index entry pruned, got %v (%v)", members, err)
	}
}

func TestStoreRedisUnavailable(t *testing.T) {
	f := newStoreFixture(t, false, 0)
	f.mr.Close()
	ctx := context.Background()

	if err := f.store.Save(ctx, f.session("sid-1", "alice", time.Hour)); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("Save: expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := f.store.Get(ctx, "2", "sid-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("Get: expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := f.store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("Ping: expected ErrRedisUnavailable, got %v", err)
	}
}
