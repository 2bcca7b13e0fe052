package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Session.Secret = "a-test-secret-of-enough-length"
	return cfg
}

func TestDefault_IsValid(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 24*time.Hour, cfg.GetLicenseTTL())
	assert.Equal(t, 8*time.Hour, cfg.GetAdminTTL())
	assert.Equal(t, 15*time.Minute, cfg.GetRateLimitWindow())
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
	assert.False(t, cfg.Lifecycle.StrictTransitions)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing listen addr", func(c *Config) { c.Server.ListenAddr = "" }, "listen_addr"},
		{"bad shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = "soon" }, "shutdown_timeout"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"short secret", func(c *Config) { c.Session.Secret = "short" }, "session.secret"},
		{"zero license ttl", func(c *Config) { c.Session.LicenseTTL = "0s" }, "license_ttl"},
		{"bad admin ttl", func(c *Config) { c.Session.AdminTTL = "forever" }, "admin_ttl"},
		{"bcrypt cost too low", func(c *Config) { c.Admin.BcryptCost = 3 }, "bcrypt_cost"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad window", func(c *Config) { c.RateLimit.Window = "-1m" }, "rate_limit.window"},
		{"zero validate max", func(c *Config) { c.RateLimit.ValidateMax = 0 }, "maximums"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RateLimitDisabledSkipsLimits(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.ValidateMax = 0
	assert.NoError(t, cfg.Validate())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90d", 90 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"36h", 36 * time.Hour},
		{"15m", 15 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MergesWithDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "127.0.0.1:9000"
  trusted_proxies: ["10.0.0.1"]
session:
  secret: "yaml-secret-0123456789"
  license_ttl: "2d"
lifecycle:
  strict_transitions: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 48*time.Hour, cfg.GetLicenseTTL())
	assert.True(t, cfg.Lifecycle.StrictTransitions)
	assert.Equal(t, "data/licenses.db", cfg.Database.Path, "unset fields keep defaults")
	assert.Equal(t, 8*time.Hour, cfg.GetAdminTTL())
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "session:\n  secret: tiny\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	path := writeConfig(t, "session:\n  secret: \"file-secret-0123456789\"\n")

	t.Setenv("LICENSE_DB_PATH", "/tmp/override.db")
	t.Setenv("LICENSE_LISTEN_ADDR", ":4000")
	t.Setenv("LICENSE_SESSION_SECRET", "env-secret-0123456789")
	t.Setenv("LICENSE_LOG_LEVEL", "debug")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, ":4000", cfg.Server.ListenAddr)
	assert.Equal(t, "env-secret-0123456789", cfg.Session.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithEnv_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LICENSE_SESSION_SECRET", "")
	t.Setenv("LICENSE_LOG_LEVEL", "")

	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":3001", cfg.Server.ListenAddr)
}

func TestLoadWithEnv_InvalidOverride(t *testing.T) {
	t.Setenv("LICENSE_LOG_LEVEL", "loud")

	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after env overrides")
}
