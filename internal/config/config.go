// Package config loads gateway configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the gateway configuration.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`
	// BaseURL is the externally visible origin used in SAML entity IDs and
	// ACS URLs (e.g. https://sso.example.com). No trailing slash.
	BaseURL string `yaml:"base_url"`

	// FallbackToDefaultIdP sends emails with unmatched domains to the
	// default IdP instead of failing the login form.
	FallbackToDefaultIdP bool `yaml:"fallback_to_default_idp"`

	// SPKeyFile and SPCertFile optionally hold PEM files for SP request
	// signing. Both empty means unsigned AuthnRequests.
	SPKeyFile  string `yaml:"sp_key_file"`
	SPCertFile string `yaml:"sp_cert_file"`

	SessionDuration time.Duration `yaml:"session_duration"`
	PendingLoginTTL time.Duration `yaml:"pending_login_ttl"`

	// Storage selects the configuration store backend: memory, sqlite or
	// postgres. DSN is the sqlite path or postgres connection string.
	Storage StorageConfig `yaml:"storage"`

	// AdminToken guards the administrative API. Empty disables it.
	AdminToken string `yaml:"admin_token"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `yaml:"sentry_dsn"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig selects and parameterizes the store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Load reads configuration from an optional YAML file, then applies
// SSOGATE_* environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// Defaults
		ListenAddr:      ":8080",
		BaseURL:         "http://localhost:8080",
		SessionDuration: 8 * time.Hour,
		PendingLoginTTL: 10 * time.Minute,
		Storage:         StorageConfig{Driver: "memory"},
		LogLevel:        "info",
		LogFormat:       "text",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("SSOGATE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SSOGATE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SSOGATE_FALLBACK_TO_DEFAULT_IDP"); v != "" {
		cfg.FallbackToDefaultIdP = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SSOGATE_SP_KEY_FILE"); v != "" {
		cfg.SPKeyFile = v
	}
	if v := os.Getenv("SSOGATE_SP_CERT_FILE"); v != "" {
		cfg.SPCertFile = v
	}
	if v := os.Getenv("SSOGATE_SESSION_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionDuration = d
		}
	}
	if v := os.Getenv("SSOGATE_PENDING_LOGIN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PendingLoginTTL = d
		}
	}
	if v := os.Getenv("SSOGATE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SSOGATE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SSOGATE_ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
	if v := os.Getenv("SSOGATE_SENTRY_DSN"); v != "" {
		cfg.SentryDSN = v
	}
	if v := os.Getenv("SSOGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SSOGATE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration fields are set and coherent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required (set SSOGATE_LISTEN_ADDR or yaml)")
	}
	if c.BaseURL == "" {
		return errors.New("base_url is required (set SSOGATE_BASE_URL or yaml)")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", c.BaseURL)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q (memory, sqlite, postgres)", c.Storage.Driver)
	}
	if (c.SPKeyFile == "") != (c.SPCertFile == "") {
		return errors.New("sp_key_file and sp_cert_file must be set together")
	}
	if c.SessionDuration <= 0 {
		return errors.New("session_duration must be positive")
	}
	return nil
}
