package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Lifecycle.Slots)
	assert.Equal(t, 30*time.Minute, cfg.Lifecycle.IdleTimeout)
	assert.Equal(t, 3, cfg.Controller.UnknownRetries)
	assert.Equal(t, "appium", cfg.Driver.Mode)
}

func TestValidateActionOutlivesBoot(t *testing.T) {
	cfg := Default()
	assert.Greater(t, cfg.Guard.ActionTimeout, cfg.Lifecycle.BootTimeout)

	cfg.Guard.ActionTimeout = cfg.Lifecycle.BootTimeout
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guard.action_timeout")

	cfg.Guard.ActionTimeout = 2 * time.Minute
	assert.Error(t, cfg.Validate())

	t.Setenv("GUARD_ACTION_TIMEOUT", "90s")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SLOTS", "2")
	t.Setenv("IDLE_TIMEOUT", "10m")
	t.Setenv("DRIVER_MODE", "simulator")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Lifecycle.Slots)
	assert.Equal(t, 10*time.Minute, cfg.Lifecycle.IdleTimeout)
	assert.Equal(t, "simulator", cfg.Driver.Mode)
	assert.Equal(t, 3*time.Minute, cfg.Lifecycle.BootTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	_, err := Load()
	assert.Error(t, err)
	assert.NotNil(t, LoadOrDefault())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "readerfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
lifecycle:
  slots: 6
  skip_snapshot: true
storage:
  driver: sqlite
  dsn: /var/lib/readerfleet/profiles.db
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Lifecycle.Slots)
	assert.True(t, cfg.Lifecycle.SkipSnapshot)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/readerfleet/profiles.db", cfg.Storage.DSN)

	// untouched sections keep defaults
	assert.Equal(t, 3, cfg.Controller.ElementRetries)
	assert.Equal(t, "reader", cfg.Lifecycle.AVDPrefix)
}

func TestLoadFileEnvWins(t *testing.T) {
	path := writeConfig(t, "lifecycle:\n  slots: 6\n")
	t.Setenv("SLOTS", "3")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Lifecycle.Slots)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "lifecycle:\n  slots: 0\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "lifecycle: [unclosed\n"))
	assert.Error(t, err)
}
