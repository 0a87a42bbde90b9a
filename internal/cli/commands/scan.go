package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/latentloop/diskindex/internal/model"
	"github.com/latentloop/diskindex/internal/scheduler"
)

var scanCmd = &cobra.Command{
	Use:   "scan <uri>",
	Short: "Scan a directory tree or object-store prefix into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, _, _, _, sched, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := cmd.Context()
	jobID, err := sched.Start(ctx, args[0])
	if err != nil {
		return err
	}

	sub, unsub := sched.Subscribe()
	defer unsub()

	for {
		job, ok := sched.Status(jobID)
		if ok && job.Status != model.ScanStatusPending && job.Status != model.ScanStatusRunning {
			return printScanResult(job)
		}
		select {
		case f, ok := <-sub:
			if !ok {
				job, _ := sched.Status(jobID)
				return printScanResult(job)
			}
			if f.JobID == jobID && f.Status == "running" {
				fmt.Printf("\r%d items (%.0f/s)", f.ItemsFound, f.ItemsPerSec)
			}
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func printScanResult(job scheduler.Job) error {
	fmt.Println()
	switch job.Status {
	case model.ScanStatusCompleted:
		fmt.Printf("scan %s complete: %d items, %d errors, blob %s\n", job.ID, job.ItemsFound, job.ErrorCount, job.BlobID)
		return nil
	case model.ScanStatusCancelled:
		return fmt.Errorf("scan %s cancelled", job.ID)
	default:
		return fmt.Errorf("scan %s failed: %s", job.ID, job.Err)
	}
}
