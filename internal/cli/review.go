package cli

import (
	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/models"
)

func init() {
	approveCmd := &cobra.Command{
		Use:   "approve <proposal-id>",
		Short: "Approve a merge proposal",
		Long: "Approve a merge proposal. The source items are archived into a new canonical " +
			"item, with snapshots kept so the merge can be reversed.",
		Args: cobra.ExactArgs(1),
		Run:  runApprove,
	}
	approveCmd.Flags().StringP("notes", "n", "", "Note recorded with the review")

	rejectCmd := &cobra.Command{
		Use:   "reject <proposal-id>",
		Short: "Reject a merge proposal",
		Args:  cobra.ExactArgs(1),
		Run:   runReject,
	}
	rejectCmd.Flags().StringP("notes", "n", "", "Note recorded with the review")

	RootCmd.AddCommand(approveCmd, rejectCmd)
}

func runApprove(cmd *cobra.Command, args []string) {
	notes, _ := cmd.Flags().GetString("notes")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.merge.Approve(args[0], &models.ReviewRequest{ReviewNotes: notes})
	if err != nil {
		exitErr("approve", err)
	}

	printJSON(resp)
}

func runReject(cmd *cobra.Command, args []string) {
	notes, _ := cmd.Flags().GetString("notes")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	proposal, err := a.merge.Reject(args[0], &models.ReviewRequest{ReviewNotes: notes})
	if err != nil {
		exitErr("reject", err)
	}

	printJSON(proposal)
}
