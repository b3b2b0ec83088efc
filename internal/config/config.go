// Package config loads the validator's TOML configuration.
//
// Grounded on the teacher's config.go (LoadConfig/defaultConfig/configPath):
// same read-file-or-defaults shape, same env-var override for the config
// path, same "missing file is not an error" tolerance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds everything cmd/peekvalidator needs to wire the service.
type Config struct {
	RelayURL         string `toml:"relay_url"`
	PublicRelayURL   string `toml:"public_relay_url"`
	RelaySecretKey   string `toml:"relay_secret_key"`
	ServiceSecretKey string `toml:"service_secret_key"`
	Port             int    `toml:"port"`

	HandlerConcurrency int  `toml:"handler_concurrency"`
	PublishTimeoutMs   int  `toml:"publish_timeout_ms"`
	QueryTimeoutMs     int  `toml:"query_timeout_ms"`
	HandlerTimeoutMs   int  `toml:"handler_timeout_ms"`
	LogDebug           bool `toml:"log_debug"`
}

func defaultConfig() Config {
	return Config{
		RelayURL:           "wss://relay.damus.io",
		PublicRelayURL:     "wss://relay.damus.io",
		Port:               8080,
		HandlerConcurrency: 32,
		PublishTimeoutMs:   2000,
		QueryTimeoutMs:     5000,
		HandlerTimeoutMs:   10000,
		LogDebug:           false,
	}
}

func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("PEEK_VALIDATOR_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "peek-validator", "config.toml")
}

// Load reads config.toml (or the default-config location), falling back to
// built-in defaults for anything unset and for a wholly missing file.
func Load(flagPath string) (Config, error) {
	cfg := defaultConfig()

	path := configPath(flagPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.HandlerConcurrency <= 0 {
		cfg.HandlerConcurrency = defaultConfig().HandlerConcurrency
	}
	if cfg.PublishTimeoutMs <= 0 {
		cfg.PublishTimeoutMs = defaultConfig().PublishTimeoutMs
	}
	if cfg.QueryTimeoutMs <= 0 {
		cfg.QueryTimeoutMs = defaultConfig().QueryTimeoutMs
	}
	if cfg.HandlerTimeoutMs <= 0 {
		cfg.HandlerTimeoutMs = defaultConfig().HandlerTimeoutMs
	}

	return cfg, nil
}

func (c Config) PublishTimeout() time.Duration { return time.Duration(c.PublishTimeoutMs) * time.Millisecond }
func (c Config) QueryTimeout() time.Duration   { return time.Duration(c.QueryTimeoutMs) * time.Millisecond }
func (c Config) HandlerTimeout() time.Duration { return time.Duration(c.HandlerTimeoutMs) * time.Millisecond }
