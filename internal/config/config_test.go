package config

import (
	"esimassist-backend/internal/credentials"
	"esimassist-backend/internal/fetch"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		nick: "Hermes",
		pw: "hunter2",
		targets: {
			alpha: {nick: "Athena", pw: "owl"},
		},
		fetch: {backoff_seconds: 0.5},
	}`), 0644))

	cfg, err := Load(path, func(string) string { return "" })
	require.NoError(t, err)

	require.Equal(t, "Hermes", cfg.Nick)
	require.Equal(t, "hunter2", cfg.Password)
	require.Equal(t, credentials.TargetConfig{Nick: "Athena", Password: "owl"}, cfg.Targets["alpha"])
	require.Equal(t, "e-sim.org", cfg.Domain)
	require.Equal(t, Defaults.Headers, cfg.Headers)
	require.Equal(t, fetch.Options{MaxAttempts: 5, Backoff: 500 * time.Millisecond}, cfg.FetchOptions())

	opts := cfg.SessionOptions()
	require.Equal(t, 30*time.Second, opts.Timeout)
	require.Equal(t, float64(2), opts.RequestsPerSecond)
}

func TestLoadLocalOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{server: {port: 8000}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{server: {port: 9100, access_token: "tok"}}`), 0644))

	cfg, err := Load(filepath.Join(dir, "config.json5"), func(string) string { return "" })
	require.NoError(t, err)
	require.Equal(t, ServerConfig{Port: 9100, AccessToken: "tok"}, cfg.Server)
}

func TestLoadWithoutFile(t *testing.T) {
	env := map[string]string{"headers": "custom-agent/2.0"}
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"), func(key string) string {
		return env[key]
	})
	require.NoError(t, err)
	require.Equal(t, "custom-agent/2.0", cfg.Headers)
	require.Equal(t, Defaults.Server.Port, cfg.Server.Port)
}

func TestLoadSearchesParentDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.json5"), []byte(`{nick: "Hermes", domain: "e-sim.test"}`), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(wd))
	})

	cfg, err := Load("config.json5", func(string) string { return "" })
	require.NoError(t, err)
	require.Equal(t, "Hermes", cfg.Nick)
	require.Equal(t, "e-sim.test", cfg.Domain)
}
