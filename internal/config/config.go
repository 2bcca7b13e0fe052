package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Admin     AdminConfig     `yaml:"admin"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// TrustedProxies lists the proxy addresses whose X-Forwarded-For is
	// believed. Empty means the peer address is always the client IP.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig contains session token configuration
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	Issuer     string `yaml:"issuer"`
	LicenseTTL string `yaml:"license_ttl"`
	AdminTTL   string `yaml:"admin_ttl"`
}

// AdminConfig contains administrator account configuration
type AdminConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// LifecycleConfig controls license status transitions
type LifecycleConfig struct {
	// StrictTransitions rejects admin status changes outside the documented
	// transition graph. Off by default: any known status may be set.
	StrictTransitions bool `yaml:"strict_transitions"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig contains rate limiting configuration. Each *_max value is
// the number of requests one client IP may make per window.
type RateLimitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Window      string `yaml:"window"`
	ValidateMax int    `yaml:"validate_max"`
	LoginMax    int    `yaml:"login_max"`
	GeneralMax  int    `yaml:"general_max"`
}

const defaultSessionSecret = "change-me-in-production"

// Default returns a configuration with every field set to its default
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":3001",
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{
			Path: "data/licenses.db",
		},
		Session: SessionConfig{
			Secret:     defaultSessionSecret,
			Issuer:     "licenseserver",
			LicenseTTL: "24h",
			AdminTTL:   "8h",
		},
		Admin: AdminConfig{
			BcryptCost: 12,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      "15m",
			ValidateMax: 10,
			LoginMax:    5,
			GeneralMax:  100,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout is invalid: %w", err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Session.Secret) < 16 {
		return fmt.Errorf("session.secret must be at least 16 characters")
	}
	if c.Session.Secret == defaultSessionSecret {
		fmt.Fprintf(os.Stderr, "WARNING: Using default session secret. Please change it in production!\n")
	}
	if d, err := parseDuration(c.Session.LicenseTTL); err != nil || d <= 0 {
		return fmt.Errorf("session.license_ttl must be a positive duration")
	}
	if d, err := parseDuration(c.Session.AdminTTL); err != nil || d <= 0 {
		return fmt.Errorf("session.admin_ttl must be a positive duration")
	}

	if c.Admin.BcryptCost < 4 || c.Admin.BcryptCost > 31 {
		return fmt.Errorf("admin.bcrypt_cost must be between 4 and 31")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	if c.RateLimit.Enabled {
		if d, err := parseDuration(c.RateLimit.Window); err != nil || d <= 0 {
			return fmt.Errorf("rate_limit.window must be a positive duration")
		}
		if c.RateLimit.ValidateMax <= 0 || c.RateLimit.LoginMax <= 0 || c.RateLimit.GeneralMax <= 0 {
			return fmt.Errorf("rate_limit maximums must be positive")
		}
	}

	return nil
}

// GetLicenseTTL returns the license session lifetime
func (c *Config) GetLicenseTTL() time.Duration {
	d, _ := parseDuration(c.Session.LicenseTTL)
	return d
}

// GetAdminTTL returns the admin session lifetime
func (c *Config) GetAdminTTL() time.Duration {
	d, _ := parseDuration(c.Session.AdminTTL)
	return d
}

// GetRateLimitWindow returns the rate limit window
func (c *Config) GetRateLimitWindow() time.Duration {
	d, _ := parseDuration(c.RateLimit.Window)
	return d
}

// GetShutdownTimeout returns how long the server waits for in-flight requests
func (c *Config) GetShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// ParseDuration parses a duration with support for days (e.g., "90d")
func ParseDuration(s string) (time.Duration, error) {
	return parseDuration(s)
}

// parseDuration parses duration with support for days (e.g., "90d")
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
