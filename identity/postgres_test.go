package identity

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrEthical07/goRoam"
)

var (
	_ goRoam.IdentityStore = (*PostgresStore)(nil)
	_ goRoam.SiteDirectory = (*PostgresStore)(nil)
)

func TestNormalizeSiteURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://Blog.Example.com/", want: "https://blog.example.com"},
		{in: "http://shop.example.com:8080/path?q=1", want: "http://shop.example.com:8080"},
		{in: "blog.example.com", want: "https://blog.example.com"},
		{in: "  ", wantErr: true},
		{in: "ftp://example.com", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeSiteURL(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSiteURL) {
				t.Fatalf("%q: expected ErrInvalidSiteURL, got %q, %v", tt.in, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: expected %q, got %q (%v)", tt.in, tt.want, got, err)
		}
	}
}

func TestRolesEncoding(t *testing.T) {
	raw, err := encodeRoles([]string{"editor", "network_admin"})
	if err != nil {
		t.Fatalf("encodeRoles failed: %v", err)
	}
	roles, err := decodeRoles(raw)
	if err != nil || len(roles) != 2 || roles[1] != "network_admin" {
		t.Fatalf("decodeRoles: got %v, %v", roles, err)
	}
	if roles, err := decodeRoles("[]"); err != nil || roles != nil {
		t.Fatalf("expected nil roles, got %v, %v", roles, err)
	}
	if _, err := decodeRoles("{"); err == nil {
		t.Fatal("expected decode error for corrupt roles")
	}
}

// TestPostgresStore runs against a real database when GOROAM_TEST_POSTGRES_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("GOROAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GOROAM_TEST_POSTGRES_DSN not set")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	s := NewPostgresStore(db, newTestHasher(t))
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	_, _ = db.ExecContext(ctx, `DELETE FROM goroam_identities`)
	_, _ = db.ExecContext(ctx, `DELETE FROM goroam_sites`)

	if _, err := s.AddSite(ctx, goRoam.Site{ID: "1", URL: "https://example.com"}); err != nil {
		t.Fatalf("AddSite failed: %v", err)
	}
	if _, err := s.AddSite(ctx, goRoam.Site{ID: "2", URL: "https://blog.example.com"}); err != nil {
		t.Fatalf("AddSite failed: %v", err)
	}
	if _, err := s.AddIdentity(ctx, goRoam.Identity{ID: "alice", Login: "Alice", Email: "alice@blog.test", SiteID: "2", Roles: []string{"editor"}}, "alice-password-123"); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}

	got, err := s.IdentityByLogin(ctx, "2", "alice")
	if err != nil || got.ID != "alice" || len(got.Roles) != 1 {
		t.Fatalf("IdentityByLogin: got %+v, %v", got, err)
	}
	if ok, err := s.VerifyCredential(ctx, got, "alice-password-123"); err != nil || !ok {
		t.Fatalf("VerifyCredential: %v %v", ok, err)
	}
	if err := s.SetMainID(ctx, "alice", "admin"); err != nil {
		t.Fatalf("SetMainID failed: %v", err)
	}
	linked, err := s.LinkedTo(ctx, "admin")
	if err != nil || len(linked) != 1 {
		t.Fatalf("LinkedTo: got %+v, %v", linked, err)
	}
	if _, err := s.SiteByURL(ctx, "HTTPS://BLOG.example.com/"); err != nil {
		t.Fatalf("SiteByURL failed: %v", err)
	}
	if err := s.SetMainID(ctx, "ghost", "admin"); !errors.Is(err, goRoam.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}
