package envconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goRoam "github.com/MrEthical07/goRoam"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	env, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", env.ListenAddr)
	}
	if env.SessionLifetime != 12*time.Hour {
		t.Errorf("SessionLifetime = %v, want 12h", env.SessionLifetime)
	}
	if env.LogFormat != "console" || env.LogLevel != "info" {
		t.Errorf("unexpected log settings %q/%q", env.LogFormat, env.LogLevel)
	}

	cfg := env.EngineConfig()
	want := goRoam.DefaultConfig()
	if cfg.Settings != want.Settings {
		t.Errorf("Settings = %+v, want %+v", cfg.Settings, want.Settings)
	}
	if cfg.Roaming != want.Roaming || cfg.RemoteLogin != want.RemoteLogin {
		t.Errorf("unexpected roaming config %+v %+v", cfg.Roaming, cfg.RemoteLogin)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should default to enabled for the server")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	t.Setenv("GOROAM_LISTEN_ADDR", ":9090")
	t.Setenv("GOROAM_NETWORK_DOMAIN", "example.com")
	t.Setenv("GOROAM_SECRET_KEY", "override-secret")
	t.Setenv("GOROAM_RATE_LIMIT_MAX", "7")
	t.Setenv("GOROAM_REMOTE_LOGIN_TOKEN_EXPIRY", "90s")
	t.Setenv("GOROAM_REMOTE_LOGIN_SINGLE_USE", "true")
	t.Setenv("GOROAM_ROAMING_ENABLED", "false")

	env, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := env.EngineConfig()
	if env.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", env.ListenAddr)
	}
	if cfg.Platform.NetworkDomain != "example.com" || cfg.Settings.SecretKey != "override-secret" {
		t.Errorf("unexpected platform/secret %+v", cfg.Platform)
	}
	if cfg.Settings.RateLimitMax != 7 || cfg.Settings.RemoteLoginTokenExpiry != 90*time.Second {
		t.Errorf("unexpected settings %+v", cfg.Settings)
	}
	if !cfg.RemoteLogin.SingleUse || cfg.Roaming.Enabled {
		t.Errorf("unexpected toggles single_use=%v roaming=%v", cfg.RemoteLogin.SingleUse, cfg.Roaming.Enabled)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), ".env")
	content := "GOROAM_NETWORK_DOMAIN=file.example\nGOROAM_LOG_FORMAT=json\nGOROAM_SITES=1=https://file.example,2=https://blog.file.example\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GOROAM_LOG_FORMAT", "console")

	env, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.NetworkDomain != "file.example" {
		t.Errorf("NetworkDomain = %q, want file.example", env.NetworkDomain)
	}
	if env.LogFormat != "console" {
		t.Errorf("env var should override the file, got %q", env.LogFormat)
	}
	sites, err := env.SiteList()
	if err != nil {
		t.Fatalf("SiteList: %v", err)
	}
	if len(sites) != 2 || sites[1].ID != "2" || sites[1].URL != "https://blog.file.example" {
		t.Errorf("unexpected sites %+v", sites)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	os.Clearenv()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "log format", key: "GOROAM_LOG_FORMAT", val: "xml", want: "GOROAM_LOG_FORMAT"},
		{name: "log level", key: "GOROAM_LOG_LEVEL", val: "loud", want: "GOROAM_LOG_LEVEL"},
		{name: "session lifetime", key: "GOROAM_SESSION_LIFETIME", val: "0s", want: "GOROAM_SESSION_LIFETIME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestSiteListRejectsMalformedEntry(t *testing.T) {
	env := &Env{Sites: "1=https://example.com,broken"}
	if _, err := env.SiteList(); err == nil {
		t.Fatal("expected malformed entry to be rejected")
	}
}

func TestLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	env := &Env{LogLevel: "warn", LogFormat: "json"}
	logger := env.Logger(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}
