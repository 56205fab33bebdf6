package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.Auth.Enabled)
	require.Equal(t, 40*time.Second, cfg.ProviderTimeout())
	require.Equal(t, 45*time.Second, cfg.AttemptBudget())
	require.Equal(t, 30*time.Minute, cfg.CacheTTL())
	require.Equal(t, []string{"mobile", "desktop"}, cfg.Analysis.Strategies)
	require.Equal(t, 2, cfg.Retry.MaxAttempts)
	require.Equal(t, 3, cfg.Batch.DefaultMaxConcurrency)
	require.Equal(t, 10, cfg.Batch.MaxConcurrencyCeiling)

	// One governed resource derived per strategy.
	require.Len(t, cfg.Resources, 2)
	for _, name := range []string{"pagespeed:mobile", "pagespeed:desktop"} {
		rc, ok := cfg.Resources[name]
		require.True(t, ok, "resource %s", name)
		require.Equal(t, 120, rc.Limit)
		require.Equal(t, 60, rc.WindowSeconds)
		require.Equal(t, 5, rc.FailureThreshold)
		require.Equal(t, 60, rc.RecoveryTimeoutSeconds)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
provider:
  api_key: file-key
  rps: 0.5
analysis:
  resource_prefix: psi
  strategies: ["mobile"]
resources:
  psi:mobile:
    limit: 10
    window_seconds: 30
    failure_threshold: 2
    recovery_timeout_seconds: 15
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "file-key", cfg.Provider.APIKey)
	require.Equal(t, 0.5, cfg.Provider.RPS)
	require.Equal(t, "psi", cfg.Analysis.ResourcePrefix)

	require.Len(t, cfg.Resources, 1)
	rc := cfg.Resources["psi:mobile"]
	require.Equal(t, 10, rc.Limit)
	require.Equal(t, 30, rc.WindowSeconds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Retry.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Resources["pagespeed:mobile"] = ResourceConfig{Limit: 0, WindowSeconds: 60, FailureThreshold: 5, RecoveryTimeoutSeconds: 60}
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Resources["pagespeed:mobile"] = ResourceConfig{Limit: 10, WindowSeconds: 0, FailureThreshold: 5, RecoveryTimeoutSeconds: 60}
	require.Error(t, cfg.Validate())
}
