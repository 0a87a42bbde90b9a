package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/latentloop/diskindex/internal/blobstore"
	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/config"
	"github.com/latentloop/diskindex/internal/mutator"
	"github.com/latentloop/diskindex/internal/planner"
	"github.com/latentloop/diskindex/internal/scheduler"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfgPath string

// SetVersion sets the build-time version info for --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

var rootCmd = &cobra.Command{
	Use:           "diskindex",
	Short:         "Incremental disk usage indexer",
	Long:          `Scans directory trees and object-store prefixes into a catalog, answering view/compare/delete without a full rescan.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default ~/.diskindex/config.yaml)")
}

// Execute runs the root command and maps the returned error to a
// process exit code: 0 success, 2 invalid input, 3 unsupported
// scheme, 4 access denied, 5 aborted, 1 anything else.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	switch common.Kind(err) {
	case "invalid_uri":
		return 2
	case "unsupported_scheme":
		return 3
	case "source_permission":
		return 4
	case "aborted":
		return 5
	default:
		return 1
	}
}

func loadConfig() (config.Config, error) {
	path := cfgPath
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".diskindex", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openCatalog(cfg config.Config) (*catalog.DB, error) {
	return catalog.Open(cfg.DBPath, 0)
}

func openComponents(cfg config.Config) (*catalog.DB, *blobstore.Store, *planner.Planner, *mutator.Mutator, *scheduler.Scheduler, error) {
	cat, err := openCatalog(cfg)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	store := blobstore.New(cfg.BlobDir)
	return cat, store, planner.New(cat, store), mutator.New(cat, store), scheduler.New(cfg, cat), nil
}
