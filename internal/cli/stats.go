package cli

import (
	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats <project>",
		Short: "Show deduplication statistics for a project",
		Args:  cobra.ExactArgs(1),
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	stats, err := a.merge.Stats(store.ProjectID(args[0]))
	if err != nil {
		exitErr("stats", err)
	}

	printJSON(stats)
}
