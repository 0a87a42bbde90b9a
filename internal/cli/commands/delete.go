package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <uri>",
	Short: "Delete a path from the source and repair affected scans",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !deleteForce {
		fmt.Printf("delete %s? this removes it from the source filesystem. re-run with --yes to confirm\n", args[0])
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, _, _, mut, _, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	result, err := mut.Delete(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("deleted %d bytes, %d descendants\n", result.DeletedSize, result.DeletedNDesc)
	for _, e := range result.PathErrors {
		fmt.Printf("  path error: %s\n", e)
	}
	for _, e := range result.RepairErrors {
		fmt.Printf("  repair deferred: %s\n", e)
	}
	if !result.OK {
		return fmt.Errorf("delete %s: completed with %d path errors", args[0], len(result.PathErrors))
	}
	return nil
}
