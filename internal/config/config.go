// Package config loads diskindex's configuration: root and blob
// directories, catalog path, scan concurrency, and probe options.
// Paths resolve through an env-override-first convention
// (DISKINDEX_ROOT_DIR) so tests can isolate state via an environment
// variable instead of a global.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

func numCPU() int {
	return runtime.NumCPU()
}

// Config is diskindex's full configuration surface.
type Config struct {
	RootDir              string        `yaml:"root_dir"`
	BlobDir              string        `yaml:"blob_dir"`
	DBPath               string        `yaml:"db_path"`
	MaxConcurrentScans   int           `yaml:"max_concurrent_scans"`
	SampleErrorPaths     int           `yaml:"sample_error_paths"`
	ProbeExcludeGlobs    []string      `yaml:"probe_exclude_globs"`
	SudoLocalProbe       bool          `yaml:"sudo_local_probe"`
	ProgressTick         time.Duration `yaml:"progress_tick"`
	FollowSymlinks       bool          `yaml:"follow_symlinks"`
	DedupeByInode        bool          `yaml:"dedupe_by_inode"`
	SnapshotRetention    int           `yaml:"snapshot_retention"`
	SnapshotRetentionAge time.Duration `yaml:"snapshot_retention_age"`
}

// rootDir returns the diskindex root directory. Uses DISKINDEX_ROOT_DIR
// if set (for test isolation), otherwise ~/.diskindex. Computed
// dynamically, not memoized, so tests can change it between runs.
func rootDir() string {
	if dir := os.Getenv("DISKINDEX_ROOT_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".diskindex")
}

// Default returns the default configuration rooted at rootDir().
func Default() Config {
	root := rootDir()
	return Config{
		RootDir:              root,
		BlobDir:              filepath.Join(root, "blobs"),
		DBPath:               filepath.Join(root, "catalog.db"),
		MaxConcurrentScans:   numCPU(),
		SampleErrorPaths:     100,
		ProgressTick:         2 * time.Second,
		FollowSymlinks:       false,
		DedupeByInode:        true,
		SnapshotRetention:    3,
		SnapshotRetentionAge: 30 * 24 * time.Hour,
	}
}

// Load reads a YAML config file at path over Default(), applying
// ApplyDefaults to fill any zero-value fields left unset. A missing
// file is not an error: Load returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-value fields with their defaults, so a
// partial YAML config layers cleanly over Default().
func (cfg *Config) ApplyDefaults() {
	def := Default()
	if cfg.RootDir == "" {
		cfg.RootDir = def.RootDir
	}
	if cfg.BlobDir == "" {
		cfg.BlobDir = filepath.Join(cfg.RootDir, "blobs")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.RootDir, "catalog.db")
	}
	if cfg.MaxConcurrentScans == 0 {
		cfg.MaxConcurrentScans = def.MaxConcurrentScans
	}
	if cfg.SampleErrorPaths == 0 {
		cfg.SampleErrorPaths = def.SampleErrorPaths
	}
	if cfg.ProgressTick == 0 {
		cfg.ProgressTick = def.ProgressTick
	}
	if cfg.SnapshotRetention == 0 {
		cfg.SnapshotRetention = def.SnapshotRetention
	}
	if cfg.SnapshotRetentionAge == 0 {
		cfg.SnapshotRetentionAge = def.SnapshotRetentionAge
	}
}

// EnsureDirs creates RootDir and BlobDir if they don't exist.
func (cfg *Config) EnsureDirs() error {
	if err := os.MkdirAll(cfg.RootDir, 0700); err != nil {
		return fmt.Errorf("creating root dir: %w", err)
	}
	if err := os.MkdirAll(cfg.BlobDir, 0700); err != nil {
		return fmt.Errorf("creating blob dir: %w", err)
	}
	return nil
}
