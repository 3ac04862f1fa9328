package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("unexpected storage driver %q", cfg.Storage.Driver)
	}
	if cfg.SessionDuration != 8*time.Hour {
		t.Errorf("unexpected session duration %v", cfg.SessionDuration)
	}
	if cfg.FallbackToDefaultIdP {
		t.Error("fallback should default to off")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
base_url: https://sso.example.com/
fallback_to_default_idp: true
session_duration: 1h
storage:
  driver: sqlite
  dsn: /var/lib/ssogate/ssogate.db
admin_token: sekret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.BaseURL != "https://sso.example.com" {
		t.Errorf("expected trailing slash stripped, got %q", cfg.BaseURL)
	}
	if !cfg.FallbackToDefaultIdP {
		t.Error("expected fallback enabled")
	}
	if cfg.SessionDuration != time.Hour {
		t.Errorf("unexpected session duration %v", cfg.SessionDuration)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN == "" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.AdminToken != "sekret" {
		t.Errorf("unexpected admin token %q", cfg.AdminToken)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
base_url: https://file.example.com
storage:
  driver: memory
`)
	t.Setenv("SSOGATE_BASE_URL", "https://env.example.com")
	t.Setenv("SSOGATE_STORAGE_DRIVER", "postgres")
	t.Setenv("SSOGATE_STORAGE_DSN", "postgres://u:p@localhost/ssogate")
	t.Setenv("SSOGATE_FALLBACK_TO_DEFAULT_IDP", "true")
	t.Setenv("SSOGATE_SESSION_DURATION", "30m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("expected env override, got %q", cfg.BaseURL)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("expected env storage driver, got %q", cfg.Storage.Driver)
	}
	if !cfg.FallbackToDefaultIdP {
		t.Error("expected fallback enabled via env")
	}
	if cfg.SessionDuration != 30*time.Minute {
		t.Errorf("unexpected session duration %v", cfg.SessionDuration)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base URL", func(c *Config) { c.BaseURL = "/sso" }},
		{"empty base URL", func(c *Config) { c.BaseURL = "" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }},
		{"sqlite without dsn", func(c *Config) { c.Storage = StorageConfig{Driver: "sqlite"} }},
		{"key without cert", func(c *Config) { c.SPKeyFile = "/etc/ssogate/key.pem" }},
		{"zero session duration", func(c *Config) { c.SessionDuration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
