package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare <uri> <scan-a> <scan-b>",
	Short: "Diff two scans' views of a path, row per child",
	Args:  cobra.ExactArgs(3),
	RunE:  runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, _, pl, _, _, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	var scanA, scanB int64
	if _, err := fmt.Sscanf(args[1], "%d", &scanA); err != nil {
		return fmt.Errorf("invalid scan id %q: %w", args[1], err)
	}
	if _, err := fmt.Sscanf(args[2], "%d", &scanB); err != nil {
		return fmt.Errorf("invalid scan id %q: %w", args[2], err)
	}

	result, err := pl.Compare(cmd.Context(), args[0], scanA, scanB)
	if err != nil {
		return err
	}
	for _, row := range result.Rows {
		fmt.Printf("%-10s %-40s size %d -> %d (%+d)  desc %d -> %d (%+d)\n",
			row.Status, row.Path, row.SizeOld, row.SizeNew, row.SizeDelta, row.NDescOld, row.NDescNew, row.NDescDelta)
	}
	fmt.Printf("total size delta: %+d\n", result.TotalDelta)
	return nil
}
