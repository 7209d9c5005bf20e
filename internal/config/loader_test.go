package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 168*time.Hour, cfg.Sync.Retention)
	assert.Equal(t, "0 0 3 * * *", cfg.Sync.SweepSchedule)
	assert.Equal(t, "Odoo", cfg.Sync.OriginTag)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 200, cfg.Diagnostics.BufferSize)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 9090\nsync:\n  max_retries: 5\nstorage:\n  driver: memory\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("ENTITYSYNC_SYNC_BATCH_SIZE", "10")
	t.Setenv("ENTITYSYNC_SERVER_PORT", "7070")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Setenv("ENTITYSYNC_TRANSPORT_PROVIDER", "kafka")
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "transport provider")

	t.Setenv("ENTITYSYNC_TRANSPORT_PROVIDER", "log")
	t.Setenv("ENTITYSYNC_BLOB_DRIVER", "s3")
	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "blob.bucket")
}
