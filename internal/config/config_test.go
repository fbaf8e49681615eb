package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("data", "data.log"), cfg.DataLogPath())
	assert.Equal(t, filepath.Join("data", "wal.log"), cfg.WALPath())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cairndb.json")
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/custom"
	cfg.LogLevel = "debug"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
