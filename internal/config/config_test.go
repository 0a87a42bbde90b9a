package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRootDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISKINDEX_ROOT_DIR", dir)

	cfg := Default()
	assert.Equal(t, dir, cfg.RootDir)
	assert.Equal(t, filepath.Join(dir, "blobs"), cfg.BlobDir)
	assert.Equal(t, filepath.Join(dir, "catalog.db"), cfg.DBPath)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISKINDEX_ROOT_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISKINDEX_ROOT_DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent_scans: 4\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrentScans)
	assert.Equal(t, 100, cfg.SampleErrorPaths)
	assert.NotEmpty(t, cfg.BlobDir)
}

func TestEnsureDirsCreatesBlobDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISKINDEX_ROOT_DIR", dir)
	cfg := Default()
	cfg.RootDir = filepath.Join(dir, "nested")
	cfg.BlobDir = filepath.Join(cfg.RootDir, "blobs")

	require.NoError(t, cfg.EnsureDirs())

	info, err := os.Stat(cfg.BlobDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
