package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	goRoam "github.com/MrEthical07/goRoam"
	"github.com/MrEthical07/goRoam/internal/envconfig"
	"github.com/rs/zerolog"
)

const (
	testAdminLogin    = "root"
	testAdminPassword = "root-password-123"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOROAM_NETWORK_DOMAIN", "example.com")
	t.Setenv("GOROAM_SECRET_KEY", "cmd-test-secret")
	t.Setenv("GOROAM_SITES", "1=https://example.com,2=https://blog.example.com")
	t.Setenv("GOROAM_ADMIN_LOGIN", testAdminLogin)
	t.Setenv("GOROAM_ADMIN_PASSWORD", testAdminPassword)
	t.Setenv("GOROAM_LOG_LEVEL", "error")
	t.Setenv("GOROAM_LOG_FORMAT", "json")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newTestApp(t *testing.T) *app {
	t.Helper()

	env, err := envconfig.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	a, err := newApp(context.Background(), env, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCheckConfig(t *testing.T) {
	setTestEnv(t)

	out, err := runCLI(t, "check-config")
	if err != nil {
		t.Fatalf("check-config failed: %v", err)
	}
	if !strings.Contains(out, "configuration ok: domain=example.com root_site=1 sites=2") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCheckConfigRejectsDefaultSecretInProduction(t *testing.T) {
	setTestEnv(t)
	t.Setenv("GOROAM_SECRET_KEY", goRoam.DefaultSecretKey)
	t.Setenv("GOROAM_PRODUCTION", "true")

	if _, err := runCLI(t, "check-config"); err == nil {
		t.Fatal("expected production mode with the default secret to be rejected")
	}
}

func TestCheckConfigWarnsOnDefaultSecret(t *testing.T) {
	setTestEnv(t)
	t.Setenv("GOROAM_SECRET_KEY", goRoam.DefaultSecretKey)

	out, err := runCLI(t, "check-config")
	if err != nil {
		t.Fatalf("check-config failed: %v", err)
	}
	if !strings.Contains(out, "warning: roaming secret key is the shipped default") {
		t.Fatalf("expected default secret warning, got %q", out)
	}
}

func TestMintLink(t *testing.T) {
	setTestEnv(t)

	out, err := runCLI(t, "mint-link", adminIdentityID, "1", "--ip", "203.0.113.10")
	if err != nil {
		t.Fatalf("mint-link failed: %v", err)
	}
	link, err := url.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("output is not a URL: %q", out)
	}
	if link.Host != "example.com" || link.Path != "/login" {
		t.Fatalf("unexpected link %q", out)
	}
	if link.Query().Get("action") != "remote_login" || link.Query().Get("token") == "" {
		t.Fatalf("missing action or token in %q", out)
	}
}

func TestMintLinkUnknownIdentity(t *testing.T) {
	setTestEnv(t)

	if _, err := runCLI(t, "mint-link", "ghost", "1"); err == nil {
		t.Fatal("expected unknown identity to fail")
	}
}

func TestResetAttempts(t *testing.T) {
	setTestEnv(t)

	out, err := runCLI(t, "reset-attempts", adminIdentityID)
	if err != nil {
		t.Fatalf("reset-attempts failed: %v", err)
	}
	if !strings.Contains(out, "cleared 0 attempts for admin") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLocalLoginRoamsToSibling(t *testing.T) {
	setTestEnv(t)
	a := newTestApp(t)
	h, err := a.handler()
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	form := url.Values{"login": {testAdminLogin}, "password": {testAdminPassword}}
	r := httptest.NewRequest(http.MethodPost, "https://example.com/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	roaming := cookieNamed(rec, a.config.Roaming.CookieName)
	if roaming == nil {
		t.Fatal("expected roaming cookie after admin login")
	}

	r = httptest.NewRequest(http.MethodGet, "https://blog.example.com/accounts", nil)
	r.AddCookie(&http.Cookie{Name: roaming.Name, Value: roaming.Value})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("accounts on sibling: status %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"accounts":[]`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestLocalLoginRejectsBadPassword(t *testing.T) {
	setTestEnv(t)
	a := newTestApp(t)
	h, err := a.handler()
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	form := url.Values{"login": {testAdminLogin}, "password": {"wrong-password"}}
	r := httptest.NewRequest(http.MethodPost, "https://example.com/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if cookieNamed(rec, a.config.Roaming.CookieName) != nil {
		t.Fatal("expected no roaming cookie on failed login")
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	setTestEnv(t)
	a := newTestApp(t)
	h, err := a.handler()
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://example.com/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://example.com/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goroam_remote_login_success_total") {
		t.Fatalf("metrics: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDrainCleanup(t *testing.T) {
	setTestEnv(t)
	a := newTestApp(t)
	ctx := context.Background()

	if err := a.cleanup.MarkPendingRemoval(ctx, adminIdentityID, "1"); err != nil {
		t.Fatalf("MarkPendingRemoval failed: %v", err)
	}
	if err := a.cleanup.MarkPendingRemoval(ctx, "ghost", "2"); err != nil {
		t.Fatalf("MarkPendingRemoval failed: %v", err)
	}

	var out bytes.Buffer
	removed, err := drainCleanup(ctx, a, &out, true)
	if err != nil || removed != 0 {
		t.Fatalf("dry run: removed %d (%v)", removed, err)
	}
	if !strings.Contains(out.String(), "would remove admin (site 1)") {
		t.Fatalf("unexpected dry-run output %q", out.String())
	}

	out.Reset()
	removed, err = drainCleanup(ctx, a, &out, false)
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (%v)", removed, err)
	}
	if _, err := a.ids.IdentityByID(ctx, adminIdentityID); err == nil {
		t.Fatal("expected admin removed")
	}
	pending, err := a.cleanup.Pending(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected empty queue, got %v (%v)", pending, err)
	}
}

func TestDrainCleanupKeepsRelinkedIdentity(t *testing.T) {
	setTestEnv(t)
	a := newTestApp(t)
	ctx := context.Background()

	if err := a.cleanup.MarkPendingRemoval(ctx, adminIdentityID, "1"); err != nil {
		t.Fatalf("MarkPendingRemoval failed: %v", err)
	}
	if err := a.ids.SetMainID(ctx, adminIdentityID, "primary"); err != nil {
		t.Fatalf("SetMainID failed: %v", err)
	}

	var out bytes.Buffer
	removed, err := drainCleanup(ctx, a, &out, false)
	if err != nil || removed != 0 {
		t.Fatalf("expected nothing removed, got %d (%v)", removed, err)
	}
	if _, err := a.ids.IdentityByID(ctx, adminIdentityID); err != nil {
		t.Fatalf("linked identity was removed: %v", err)
	}
	if !strings.Contains(out.String(), "kept admin (site 1): linked again") {
		t.Fatalf("unexpected output %q", out.String())
	}
	pending, err := a.cleanup.Pending(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected empty queue, got %v (%v)", pending, err)
	}
}
