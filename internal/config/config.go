// Package config loads server settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// TRIPCART_* environment variables. Command-line flags are applied on top by
// the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	StaticDir string `yaml:"static_dir"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`

	// BroadcastMode is "scoped" or "global".
	BroadcastMode string `yaml:"broadcast_mode"`

	// ToggleCAS makes concurrent purchase toggles fail instead of both
	// applying.
	ToggleCAS bool `yaml:"toggle_cas"`

	// WSRateLimit is the number of /ws upgrades allowed per client IP per
	// minute.
	WSRateLimit int `yaml:"ws_rate_limit"`
}

// DatabaseConfig selects the trip store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite file.
	Path string `yaml:"path"`
	// URL is the PostgreSQL connection string.
	URL string `yaml:"url"`
}

// AuthConfig selects how access tokens are verified.
type AuthConfig struct {
	// Mode is "jwt" (shared HS256 secret) or "oidc".
	Mode         string `yaml:"mode"`
	JWTSecret    string `yaml:"jwt_secret"`
	JWTAudience  string `yaml:"jwt_audience"`
	JWTIssuer    string `yaml:"jwt_issuer"`
	OIDCIssuer   string `yaml:"oidc_issuer"`
	OIDCClientID string `yaml:"oidc_client_id"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Port:          "8080",
		LogLevel:      "info",
		LogFormat:     "text",
		StaticDir:     "public",
		BroadcastMode: "scoped",
		WSRateLimit:   30,
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "tripcart.db",
		},
		Auth: AuthConfig{
			Mode:        "jwt",
			JWTAudience: "authenticated",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"TRIPCART_HOST", &c.Host},
		{"TRIPCART_PORT", &c.Port},
		{"TRIPCART_LOG_LEVEL", &c.LogLevel},
		{"TRIPCART_LOG_FORMAT", &c.LogFormat},
		{"TRIPCART_STATIC_DIR", &c.StaticDir},
		{"TRIPCART_BROADCAST_MODE", &c.BroadcastMode},
		{"TRIPCART_DB_DRIVER", &c.Database.Driver},
		{"TRIPCART_DB_PATH", &c.Database.Path},
		{"TRIPCART_DB_URL", &c.Database.URL},
		{"TRIPCART_AUTH_MODE", &c.Auth.Mode},
		{"TRIPCART_JWT_SECRET", &c.Auth.JWTSecret},
		{"TRIPCART_JWT_AUDIENCE", &c.Auth.JWTAudience},
		{"TRIPCART_JWT_ISSUER", &c.Auth.JWTIssuer},
		{"TRIPCART_OIDC_ISSUER", &c.Auth.OIDCIssuer},
		{"TRIPCART_OIDC_CLIENT_ID", &c.Auth.OIDCClientID},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}

	if v, ok := lookup("TRIPCART_TOGGLE_CAS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRIPCART_TOGGLE_CAS: %w", err)
		}
		c.ToggleCAS = b
	}
	if v, ok := lookup("TRIPCART_WS_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRIPCART_WS_RATE_LIMIT: %w", err)
		}
		c.WSRateLimit = n
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	switch strings.ToLower(c.BroadcastMode) {
	case "", "scoped", "global":
	default:
		errs = append(errs, fmt.Errorf("broadcast_mode must be scoped or global, got %q", c.BroadcastMode))
	}
	if c.WSRateLimit < 1 {
		errs = append(errs, errors.New("ws_rate_limit must be at least 1"))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required for jwt mode"))
		}
	case "oidc":
		if c.Auth.OIDCIssuer == "" {
			errs = append(errs, errors.New("auth.oidc_issuer is required for oidc mode"))
		}
		if c.Auth.OIDCClientID == "" {
			errs = append(errs, errors.New("auth.oidc_client_id is required for oidc mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode must be jwt or oidc, got %q", c.Auth.Mode))
	}

	return errors.Join(errs...)
}

// DSN returns the connection target for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.Database.URL
	}
	return c.Database.Path
}
