package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "coinsaga", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.Saga.Deadline)
	assert.Equal(t, 30*time.Second, cfg.Saga.SweepInterval)
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
server:
  port: 9999
log:
  level: debug
saga:
  deadline: 90s
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 90*time.Second, cfg.Saga.Deadline)
	// Untouched keys keep their defaults.
	assert.Equal(t, "coinsaga", cfg.App.Name)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "server:\n  port: 9999\n")

	t.Setenv("COINSAGA_SERVER_PORT", "7777")
	t.Setenv("COINSAGA_LOG_LEVEL", "warn")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadExplicitOverridesWin(t *testing.T) {
	t.Setenv("COINSAGA_SERVER_PORT", "7777")

	cfg, err := Load("", map[string]interface{}{
		"server.port": 6666,
	})
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.Port)
}

func TestLoadJSONFile(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"server":{"port":8181}}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfigFile(t, "config.toml", "port = 1")

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "log:\n  level: loud\n")

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Log.Level")
}
