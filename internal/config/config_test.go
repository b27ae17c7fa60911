package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Filter.MaxCodeBlockLines != 30 || cfg.Filter.MaxLineLength != 1000 {
		t.Errorf("unexpected filter defaults: %+v", cfg.Filter)
	}
	if cfg.Filter.MinSessionLength != 200 || cfg.Filter.MaxTranscriptLength != 25000 {
		t.Errorf("unexpected skip defaults: %+v", cfg.Filter)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should be fine: %v", err)
	}
	if cfg.Backend.Bank != "default" {
		t.Errorf("expected default bank, got %q", cfg.Backend.Bank)
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
backend:
  url: https://memory.example.com
  bank: myproject
  health_timeout_ms: 1000
  store_timeout_ms: 30000
  recall_timeout_ms: 10000
  reflect_timeout_ms: 120000
filter:
  min_session_length: 50
retry:
  max_attempts: 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "https://memory.example.com" || cfg.Backend.Bank != "myproject" {
		t.Errorf("backend section not applied: %+v", cfg.Backend)
	}
	if cfg.Backend.ReflectTimeout() != 2*time.Minute {
		t.Errorf("timeout parsing failed: %v", cfg.Backend.ReflectTimeout())
	}
	if cfg.Filter.MinSessionLength != 50 {
		t.Errorf("filter override lost: %d", cfg.Filter.MinSessionLength)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("retry override lost: %d", cfg.Retry.MaxAttempts)
	}
	// Untouched sections keep defaults.
	if cfg.Filter.MaxLineLength != 1000 {
		t.Errorf("unrelated defaults must survive a partial file: %d", cfg.Filter.MaxLineLength)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("backend:\n  url: http://from-file\n"), 0o644)

	t.Setenv("MEMBANK_URL", "http://from-env")
	t.Setenv("MEMBANK_BANK", "env-bank")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "http://from-env" || cfg.Backend.Bank != "env-bank" {
		t.Errorf("environment must win over file: %+v", cfg.Backend)
	}
}

func TestValidateRejectsNonsense(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Backend.URL = "" },
		func(c *Config) { c.Backend.Bank = "" },
		func(c *Config) { c.Backend.HealthTimeoutMs = 0 },
		func(c *Config) { c.Retry.MaxAttempts = 0 },
		func(c *Config) { c.Retry.Multiplier = 0.5 },
		func(c *Config) { c.Filter.MaxLineLength = 0 },
		func(c *Config) { c.DBPath = "" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestBadYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("backend: [not a map"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
