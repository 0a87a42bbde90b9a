package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <uri>",
	Short: "List completed scans covering a path, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	recs, err := cat.HistoryFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no scans cover this path")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%d  %s  root=%s  size=%d  errors=%d\n",
			r.ID, r.CompletedAt.Format("2006-01-02 15:04:05"), r.RootURI, r.RootSize, r.ErrorCount)
	}
	return nil
}
