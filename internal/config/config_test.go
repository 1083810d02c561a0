package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaultsForOmittedSections(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  yfinance:
    priority: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Drift.Window)
	require.Equal(t, 50, cfg.Reconcile.SampleSize)
	require.Equal(t, ":memory:", cfg.Storage.DSN)
}

func TestLoad_RejectsUnknownAuthKind(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  bad:
    auth_kind: not_a_real_kind
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsDriftWindowBelowTwo(t *testing.T) {
	path := writeTempConfig(t, `
drift:
  window: 1
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsWarnThresholdAtOrAboveFailThreshold(t *testing.T) {
	path := writeTempConfig(t, `
drift:
  window: 10
  warn_threshold: 3
  fail_threshold: 3
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	require.Error(t, err)
}

func TestValidate_RejectsNegativeRateLimits(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderSpec{"x": {RateLimitPerMinute: -1}}
	require.Error(t, cfg.Validate())
}
