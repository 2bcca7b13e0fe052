package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file. Fields absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable
// overrides. A missing file is not an error: defaults plus environment are used.
func LoadWithEnv(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if dbPath := os.Getenv("LICENSE_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if listenAddr := os.Getenv("LICENSE_LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if secret := os.Getenv("LICENSE_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}

	if level := os.Getenv("LICENSE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
