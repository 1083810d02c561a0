// Package config loads the application-level YAML configuration: provider
// fleet, cache, embedded store, symbol rules, and data-quality thresholds.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Providers  map[string]ProviderSpec `yaml:"providers"`
	Cache      CacheSpec               `yaml:"cache"`
	Storage    StorageSpec             `yaml:"storage"`
	SymbolRules SymbolRulesSpec        `yaml:"symbol_rules"`
	Drift      DriftSpec               `yaml:"drift"`
	Reconcile  ReconcileSpec           `yaml:"reconcile"`
}

// ProviderSpec configures one registered provider.
type ProviderSpec struct {
	Priority           int      `yaml:"priority"`
	ConcurrentRequests int      `yaml:"concurrent_requests"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RateLimitPerHour   int      `yaml:"rate_limit_per_hour"`
	AuthKind           string   `yaml:"auth_kind"`
	APIKeyEnv          string   `yaml:"api_key_env"`
	Assets             []string `yaml:"assets"`
	Markets            []string `yaml:"markets"`
}

// CacheSpec configures the multi-level cache.
type CacheSpec struct {
	EnableSlowPath bool `yaml:"enable_slow_path"`
}

// StorageSpec configures the embedded analytical store.
type StorageSpec struct {
	DSN          string        `yaml:"dsn"`
	Threads      int           `yaml:"threads"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// SymbolRulesSpec points at the normalization rule file.
type SymbolRulesSpec struct {
	Path string `yaml:"path"`
}

// DriftSpec configures drift detector defaults.
type DriftSpec struct {
	Window        int     `yaml:"window"`
	WarnThreshold float64 `yaml:"warn_threshold"`
	FailThreshold float64 `yaml:"fail_threshold"`
}

// ReconcileSpec configures the reconciliation sampler defaults.
type ReconcileSpec struct {
	SampleSize int `yaml:"sample_size"`
}

// Default returns the configuration's zero-value defaults, matching the
// thresholds named throughout spec.md.
func Default() Config {
	return Config{
		Drift:     DriftSpec{Window: 20, WarnThreshold: 2.0, FailThreshold: 3.0},
		Reconcile: ReconcileSpec{SampleSize: 50},
		Storage:   StorageSpec{DSN: ":memory:", Threads: 1, QueryTimeout: 30 * time.Second},
	}
}

// Load reads and parses a YAML configuration file, applying defaults to
// any omitted section.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants a Config must satisfy before use.
func (c Config) Validate() error {
	for name, spec := range c.Providers {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("config: provider %q: %w", name, err)
		}
	}
	if c.Drift.Window < 2 {
		return fmt.Errorf("config: drift.window must be >= 2, got %d", c.Drift.Window)
	}
	if c.Drift.WarnThreshold <= 0 || c.Drift.FailThreshold <= 0 {
		return fmt.Errorf("config: drift thresholds must be positive")
	}
	if c.Drift.WarnThreshold >= c.Drift.FailThreshold {
		return fmt.Errorf("config: drift.warn_threshold must be < drift.fail_threshold")
	}
	if c.Reconcile.SampleSize <= 0 {
		return fmt.Errorf("config: reconcile.sample_size must be > 0")
	}
	return nil
}

// Validate enforces the invariants a ProviderSpec must satisfy.
func (s ProviderSpec) Validate() error {
	if s.ConcurrentRequests < 0 {
		return fmt.Errorf("concurrent_requests must be >= 0")
	}
	if s.RateLimitPerMinute < 0 || s.RateLimitPerHour < 0 {
		return fmt.Errorf("rate limits must be >= 0")
	}
	switch s.AuthKind {
	case "", "none", "api_key", "bearer_token", "basic_auth", "oauth2":
	default:
		return fmt.Errorf("unknown auth_kind %q", s.AuthKind)
	}
	return nil
}
