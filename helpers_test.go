package goRoam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goRoam/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "unit-test-roaming-secret"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

/*
====================================
FAKE IDENTITY STORE
====================================
*/

type fakeIdentities struct {
	mu         sync.Mutex
	hasher     *password.Argon2
	identities map[string]Identity
	lookupErr  error
	setMainErr error

	setMainCalls int
}

func newFakeIdentities(hasher *password.Argon2) *fakeIdentities {
	return &fakeIdentities{
		hasher:     hasher,
		identities: map[string]Identity{},
	}
}

func (f *fakeIdentities) add(t *testing.T, identity Identity, plain string) {
	t.Helper()
	if plain != "" {
		hash, err := f.hasher.Hash(plain)
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}
		identity.PasswordHash = hash
	}
	f.mu.Lock()
	f.identities[identity.ID] = identity
	f.mu.Unlock()
}

func (f *fakeIdentities) get(id string) Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identities[id]
}

func (f *fakeIdentities) remove(id string) {
	f.mu.Lock()
	delete(f.identities, id)
	f.mu.Unlock()
}

func (f *fakeIdentities) IdentityByID(_ context.Context, id string) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return Identity{}, f.lookupErr
	}
	identity, ok := f.identities[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (f *fakeIdentities) IdentityByLogin(_ context.Context, siteID, login string) (Identity, error) {
	return f.find(siteID, func(i Identity) bool { return strings.EqualFold(i.Login, login) })
}

func (f *fakeIdentities) IdentityByEmail(_ context.Context, siteID, email string) (Identity, error) {
	return f.find(siteID, func(i Identity) bool { return strings.EqualFold(i.Email, email) })
}

func (f *fakeIdentities) find(siteID string, match func(Identity) bool) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return Identity{}, f.lookupErr
	}
	for _, identity := range f.identities {
		if identity.SiteID == siteID && match(identity) {
			return identity, nil
		}
	}
	return Identity{}, ErrIdentityNotFound
}

func (f *fakeIdentities) VerifyCredential(_ context.Context, identity Identity, plain string) (bool, error) {
	if identity.PasswordHash == "" {
		return false, nil
	}
	return f.hasher.Verify(plain, identity.PasswordHash)
}

func (f *fakeIdentities) SetMainID(_ context.Context, identityID, mainID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setMainCalls++
	if f.setMainErr != nil {
		return f.setMainErr
	}
	identity, ok := f.identities[identityID]
	if !ok {
		return ErrIdentityNotFound
	}
	identity.MainID = mainID
	f.identities[identityID] = identity
	return nil
}

func (f *fakeIdentities) LinkedTo(_ context.Context, mainID string) ([]Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Identity
	for _, identity := range f.identities {
		if identity.MainID == mainID {
			out = append(out, identity)
		}
	}
	return out, nil
}

/*
====================================
FAKE SITE DIRECTORY
====================================
*/

type fakeSites map[string]Site

func (f fakeSites) SiteByURL(_ context.Context, rawURL string) (Site, error) {
	want := strings.TrimRight(strings.ToLower(rawURL), "/")
	for _, site := range f {
		if strings.ToLower(site.URL) == want {
			return site, nil
		}
	}
	return Site{}, ErrSiteNotFound
}

func (f fakeSites) SiteByID(_ context.Context, id string) (Site, error) {
	site, ok := f[id]
	if !ok {
		return Site{}, ErrSiteNotFound
	}
	return site, nil
}

/*
====================================
FAKE SESSION HOST
====================================
*/

// fakeSessions keeps one local session for the whole test and records every
// call in order.
type fakeSessions struct {
	mu           sync.Mutex
	current      string
	calls        []string
	establishErr error
	currentErr   error
}

func (f *fakeSessions) CurrentIdentity(context.Context, *http.Request) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentErr != nil {
		return "", false, f.currentErr
	}
	return f.current, f.current != "", nil
}

func (f *fakeSessions) Establish(_ context.Context, _ http.ResponseWriter, _ *http.Request, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "establish:"+identityID)
	if f.establishErr != nil {
		return f.establishErr
	}
	f.current = identityID
	return nil
}

func (f *fakeSessions) Terminate(context.Context, http.ResponseWriter, *http.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "terminate")
	f.current = ""
	return nil
}

func (f *fakeSessions) set(id string) {
	f.mu.Lock()
	f.current = id
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeSessions) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

/*
====================================
TEST ENGINE
====================================
*/

type testEnv struct {
	engine     *Engine
	mr         *miniredis.Miniredis
	rdb        *redis.Client
	identities *fakeIdentities
	sites      fakeSites
	sessions   *fakeSessions
	now        time.Time
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Platform.NetworkDomain = "example.com"
	cfg.Settings.SecretKey = testSecret
	cfg.Cache.CacheSettings = false
	cfg.Metrics.Enabled = true
	return cfg
}

func testSites() fakeSites {
	return fakeSites{
		"1": {ID: "1", URL: "https://example.com"},
		"2": {ID: "2", URL: "https://blog.example.com"},
		"3": {ID: "3", URL: "https://shop.example.com"},
	}
}

func newTestEnv(t *testing.T, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:         mr,
		rdb:        rdb,
		identities: newFakeIdentities(newTestHasher(t)),
		sites:      testSites(),
		sessions:   &fakeSessions{},
		now:        time.Unix(1_700_000_000, 0),
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(env.identities).
		WithSiteDirectory(env.sites).
		WithSessionHost(env.sessions)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	engine.now = func() time.Time { return env.now }
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// advance moves the engine clock and the miniredis TTL clock together.
func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
	env.mr.FastForward(d)
}

func (env *testEnv) request(host, target string, cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "https://"+host+target, nil)
	r.Host = host
	r.RemoteAddr = "203.0.113.10:51234"
	for _, c := range cookies {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func seedNetwork(t *testing.T, env *testEnv) {
	t.Helper()
	env.identities.add(t, Identity{ID: "admin", Login: "root", Email: "root@example.com", SiteID: "1", NetworkAdmin: true}, "root-password-123")
	env.identities.add(t, Identity{ID: "member", Login: "member", Email: "member@example.com", SiteID: "1"}, "member-password-123")
	env.identities.add(t, Identity{ID: "alice-blog", Login: "alice", Email: "alice@blog.test", SiteID: "2"}, "alice-password-123")
	env.identities.add(t, Identity{ID: "alice-shop", Login: "alice", Email: "alice@shop.test", SiteID: "3"}, "shop-password-123")
}
