package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunReturnsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{server: `), 0644))

	err := run(context.Background(), path)
	require.ErrorContains(t, err, "read config")
}

func TestRunReturnsAppError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	// the keychain database cannot be created inside a missing directory
	require.NoError(t, os.WriteFile(path, []byte(`{
		keychain: {file: "`+filepath.Join(dir, "missing", "keychain.db")+`"},
	}`), 0644))

	err := run(context.Background(), path)
	require.ErrorContains(t, err, "init app")
}
