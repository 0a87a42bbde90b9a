package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/latentloop/diskindex/internal/scheduler"
)

var (
	workerJobID string
	workerRoot  string
)

// scanWorkerCmd is the hidden `__scan-worker` entry point the
// Scheduler re-execs into a subprocess. It is never invoked directly
// by a user: the parent process launches it with fd 3 wired to the
// progress pipe's write end.
var scanWorkerCmd = &cobra.Command{
	Use:    scheduler.ScanWorkerSubcommand,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		progressOut := os.NewFile(3, "progress-pipe")
		if progressOut == nil {
			return os.ErrInvalid
		}
		defer progressOut.Close()
		return scheduler.RunWorker(cmd.Context(), cfg, workerJobID, workerRoot, nil, progressOut)
	},
}

func init() {
	scanWorkerCmd.Flags().StringVar(&workerJobID, "job-id", "", "job id assigned by the parent scheduler")
	scanWorkerCmd.Flags().StringVar(&workerRoot, "root", "", "root uri to scan")
	rootCmd.AddCommand(scanWorkerCmd)
}
