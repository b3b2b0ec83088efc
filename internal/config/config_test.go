package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if cfg.HandlerConcurrency != 32 {
		t.Errorf("HandlerConcurrency = %d, want 32", cfg.HandlerConcurrency)
	}
	if cfg.PublishTimeoutMs != 2000 {
		t.Errorf("PublishTimeoutMs = %d, want 2000", cfg.PublishTimeoutMs)
	}
	if cfg.QueryTimeoutMs != 5000 {
		t.Errorf("QueryTimeoutMs = %d, want 5000", cfg.QueryTimeoutMs)
	}
	if cfg.HandlerTimeoutMs != 10000 {
		t.Errorf("HandlerTimeoutMs = %d, want 10000", cfg.HandlerTimeoutMs)
	}
	if cfg.LogDebug {
		t.Error("LogDebug default should be false")
	}
}

func TestConfigPath(t *testing.T) {
	t.Run("flag takes priority", func(t *testing.T) {
		got := configPath("/my/flag/path.toml")
		if got != "/my/flag/path.toml" {
			t.Errorf("configPath with flag = %q, want %q", got, "/my/flag/path.toml")
		}
	})

	t.Run("env var when no flag", func(t *testing.T) {
		t.Setenv("PEEK_VALIDATOR_CONFIG", "/env/path.toml")
		got := configPath("")
		if got != "/env/path.toml" {
			t.Errorf("configPath with env = %q, want %q", got, "/env/path.toml")
		}
	})

	t.Run("default when no flag or env", func(t *testing.T) {
		t.Setenv("PEEK_VALIDATOR_CONFIG", "")
		got := configPath("")
		home, _ := os.UserHomeDir()
		want := filepath.Join(home, ".config", "peek-validator", "config.toml")
		if got != want {
			t.Errorf("configPath default = %q, want %q", got, want)
		}
	})
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HandlerConcurrency != 32 {
		t.Errorf("HandlerConcurrency = %d, want default 32", cfg.HandlerConcurrency)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
relay_url = "wss://example.relay"
public_relay_url = "wss://public.relay"
relay_secret_key = "deadbeef"
service_secret_key = "beefdead"
handler_concurrency = 8
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RelayURL != "wss://example.relay" {
		t.Errorf("RelayURL = %q, want %q", cfg.RelayURL, "wss://example.relay")
	}
	if cfg.HandlerConcurrency != 8 {
		t.Errorf("HandlerConcurrency = %d, want 8", cfg.HandlerConcurrency)
	}
	// Unset timeout fields should still fall back to defaults.
	if cfg.QueryTimeoutMs != 5000 {
		t.Errorf("QueryTimeoutMs = %d, want default 5000", cfg.QueryTimeoutMs)
	}
}
