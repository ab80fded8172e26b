package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray config.yaml is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaultsWithEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("THERAPY_AUTH_SECRET", "s3cret")
	t.Setenv("THERAPY_SERVER_PORT", "9090")
	t.Setenv("THERAPY_STORAGE_DRIVER", "memory")
	t.Setenv("THERAPY_OUTBOX_POLL_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StatisticsTTL)
	assert.Contains(t, cfg.CORS.AllowedMethods, "PATCH")
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := []byte(`
server:
  port: 7070
auth:
  enabled: false
database:
  driver: pgx
  name: practice
practice:
  name: Quiet Room Counselling
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "practice", cfg.Database.Name)
	assert.Equal(t, "Quiet Room Counselling", cfg.Practice.Name)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load()
	require.Error(t, err, "auth is on by default and needs a secret")

	t.Setenv("THERAPY_AUTH_ENABLED", "false")
	t.Setenv("THERAPY_STORAGE_DRIVER", "sqlite")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}
