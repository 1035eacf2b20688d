package cli

import (
	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "proposals <project>",
		Short: "List merge proposals for a project",
		Args:  cobra.ExactArgs(1),
		Run:   runProposals,
	}

	cmd.Flags().StringP("status", "s", "", "Filter by status: pending, approved, rejected, expired")
	cmd.Flags().IntP("limit", "l", 20, "Maximum proposals to return")
	cmd.Flags().Int("offset", 0, "Pagination offset")

	RootCmd.AddCommand(cmd)
}

func runProposals(cmd *cobra.Command, args []string) {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.merge.ListProposals(store.ProjectID(args[0]), status, limit, offset)
	if err != nil {
		exitErr("proposals", err)
	}

	printJSON(resp)
}
