package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubestore/metastore/internal/config"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	l, err := config.Load("")
	require.NoError(t, err)
	c := l.Current()
	assert.Equal(t, 60*time.Second, c.CheckpointInterval)
	assert.Equal(t, 8, c.WorkerPoolSize)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint_interval: 30s\nworker_pool_size: 2\n"), 0o644))

	l, err := config.Load(path)
	require.NoError(t, err)
	c := l.Current()
	assert.Equal(t, 30*time.Second, c.CheckpointInterval)
	assert.Equal(t, 2, c.WorkerPoolSize)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("METASTORE_WORKER_POOL_SIZE", "16")
	l, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, l.Current().WorkerPoolSize)
}
