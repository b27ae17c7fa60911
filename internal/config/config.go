// Package config loads the membank configuration.
//
// Resolution order: built-in defaults, then the YAML config file, then
// environment variables. Load returns a fully resolved value; no component
// applies defaults at its own call sites.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend holds remote memory backend settings. Timeouts are per-operation:
// health probes are shortest, reflection is longest since the backend runs
// reasoning for it.
type Backend struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Bank   string `yaml:"bank"`

	HealthTimeoutMs  int `yaml:"health_timeout_ms"`
	StoreTimeoutMs   int `yaml:"store_timeout_ms"`
	RecallTimeoutMs  int `yaml:"recall_timeout_ms"`
	ReflectTimeoutMs int `yaml:"reflect_timeout_ms"`
}

func (b Backend) HealthTimeout() time.Duration  { return time.Duration(b.HealthTimeoutMs) * time.Millisecond }
func (b Backend) StoreTimeout() time.Duration   { return time.Duration(b.StoreTimeoutMs) * time.Millisecond }
func (b Backend) RecallTimeout() time.Duration  { return time.Duration(b.RecallTimeoutMs) * time.Millisecond }
func (b Backend) ReflectTimeout() time.Duration { return time.Duration(b.ReflectTimeoutMs) * time.Millisecond }

// Filter holds transcript filtering and skip-heuristic settings.
type Filter struct {
	MaxCodeBlockLines   int  `yaml:"max_code_block_lines"`
	MaxLineLength       int  `yaml:"max_line_length"`
	MinSessionLength    int  `yaml:"min_session_length"`
	MaxTranscriptLength int  `yaml:"max_transcript_length"`
	SkipNoisySessions   bool `yaml:"skip_noisy_sessions"`
}

// Retry holds backoff policy settings for backend calls.
type Retry struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
	Jitter         bool    `yaml:"jitter"`
}

func (r Retry) InitialDelay() time.Duration { return time.Duration(r.InitialDelayMs) * time.Millisecond }
func (r Retry) MaxDelay() time.Duration     { return time.Duration(r.MaxDelayMs) * time.Millisecond }

// Config is the resolved membank configuration.
type Config struct {
	Backend Backend `yaml:"backend"`
	Filter  Filter  `yaml:"filter"`
	Retry   Retry   `yaml:"retry"`
	DBPath  string  `yaml:"db_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Backend: Backend{
			URL:              "http://localhost:8888",
			Bank:             "default",
			HealthTimeoutMs:  3000,
			StoreTimeoutMs:   15000,
			RecallTimeoutMs:  15000,
			ReflectTimeoutMs: 60000,
		},
		Filter: Filter{
			MaxCodeBlockLines:   30,
			MaxLineLength:       1000,
			MinSessionLength:    200,
			MaxTranscriptLength: 25000,
			SkipNoisySessions:   true,
		},
		Retry: Retry{
			MaxAttempts:    3,
			InitialDelayMs: 500,
			MaxDelayMs:     10000,
			Multiplier:     2.0,
			Jitter:         true,
		},
		DBPath: filepath.Join(home, ".membank", "queue.db"),
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if env := os.Getenv("MEMBANK_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".membank", "config.yaml")
}

// Load resolves the configuration from defaults, the YAML file at path (a
// missing file is fine), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMBANK_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("MEMBANK_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("MEMBANK_BANK"); v != "" {
		cfg.Backend.Bank = v
	}
	if v := os.Getenv("MEMBANK_DB"); v != "" {
		cfg.DBPath = v
	}
}

// Validate rejects configurations no component could run with.
func (c Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.Bank == "" {
		return fmt.Errorf("backend.bank is required")
	}
	if c.Backend.HealthTimeoutMs <= 0 || c.Backend.StoreTimeoutMs <= 0 ||
		c.Backend.RecallTimeoutMs <= 0 || c.Backend.ReflectTimeoutMs <= 0 {
		return fmt.Errorf("backend timeouts must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	if c.Filter.MaxLineLength <= 0 || c.Filter.MaxCodeBlockLines <= 0 {
		return fmt.Errorf("filter limits must be positive")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	return nil
}
