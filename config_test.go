package goRoam

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "baseline valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "root site required",
			mutate: func(c *Config) {
				c.Platform.RootSiteID = "  "
			},
			wantValid: false,
		},
		{
			name: "network domain required with roaming",
			mutate: func(c *Config) {
				c.Platform.NetworkDomain = ""
			},
			wantValid: false,
		},
		{
			name: "network domain optional without roaming",
			mutate: func(c *Config) {
				c.Platform.NetworkDomain = ""
				c.Roaming.Enabled = false
			},
			wantValid: true,
		},
		{
			name: "login path must be absolute",
			mutate: func(c *Config) {
				c.Platform.LoginPath = "login"
			},
			wantValid: false,
		},
		{
			name: "home path must be absolute",
			mutate: func(c *Config) {
				c.Platform.HomePath = ""
			},
			wantValid: false,
		},
		{
			name: "cookie name required",
			mutate: func(c *Config) {
				c.Roaming.CookieName = ""
			},
			wantValid: false,
		},
		{
			name: "audit buffer required when enabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "token expiry below range",
			mutate: func(c *Config) {
				c.Settings.RemoteLoginTokenExpiry = 10 * time.Second
			},
			wantValid: false,
		},
		{
			name: "rate limit max above range",
			mutate: func(c *Config) {
				c.Settings.RateLimitMax = 11
			},
			wantValid: false,
		},
		{
			name: "production mode rejects default secret",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Settings.SecretKey = DefaultSecretKey
			},
			wantValid: false,
		},
		{
			name: "production mode with rotated secret",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestDefaultConfigNeedsNetworkDomain(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without a network domain to be rejected")
	}
	cfg.Platform.NetworkDomain = "example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with a domain to validate, got %v", err)
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without identity store")
	}

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithIdentityStore(newFakeIdentities(nil)).
		WithSiteDirectory(testSites()).
		WithSessionHost(&fakeSessions{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if engine.BoundDomain() != ".example.com" {
		t.Fatalf("expected bound domain .example.com, got %q", engine.BoundDomain())
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
