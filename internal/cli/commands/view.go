package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/latentloop/diskindex/internal/model"
)

var viewDepth int

var viewCmd = &cobra.Command{
	Use:   "view <uri>",
	Short: "Show the catalog's best-effort view of a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

func init() {
	viewCmd.Flags().IntVar(&viewDepth, "depth", 1, "how many levels below the target to include")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, _, pl, _, _, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	v, err := pl.View(cmd.Context(), args[0], viewDepth)
	if err != nil {
		return err
	}

	fmt.Printf("status: %s\n", v.ScanStatus)
	if v.ScanPath != "" {
		fmt.Printf("scan root: %s (completed %s)\n", v.ScanPath, v.ScanTime.Format("2006-01-02 15:04:05"))
	}
	if v.ScanStatus == model.ViewStatusNone {
		return nil
	}
	fmt.Printf("%s  size=%d  children=%d  desc=%d\n", v.Root.Path, v.Root.Size, v.Root.NChildren, v.Root.NDesc)

	children := append([]model.ViewNode(nil), v.Children...)
	sort.Slice(children, func(i, j int) bool { return children[i].Size > children[j].Size })
	for _, c := range children {
		mark := ""
		if c.Scanned == model.ScannedPartial {
			mark = " (partial)"
		}
		fmt.Printf("  %s  size=%d  desc=%d%s\n", c.Path, c.Size, c.NDesc, mark)
	}
	return nil
}
