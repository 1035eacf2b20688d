package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reverse <history-id>",
		Short: "Reverse an approved merge",
		Long: "Reverse an approved merge. The canonical item is removed and the original " +
			"source items are restored byte-for-byte from their snapshots.",
		Args: cobra.ExactArgs(1),
		Run:  runReverse,
	}

	cmd.Flags().StringP("reason", "r", "", "Why the merge is being reversed")
	cmd.Flags().String("by", "", "Who is reversing (default: $USER)")

	RootCmd.AddCommand(cmd)
}

func runReverse(cmd *cobra.Command, args []string) {
	reason, _ := cmd.Flags().GetString("reason")
	by, _ := cmd.Flags().GetString("by")
	if by == "" {
		by = os.Getenv("USER")
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.merge.Reverse(args[0], &models.ReverseRequest{
		Reason:     reason,
		ReversedBy: by,
	})
	if err != nil {
		exitErr("reverse", err)
	}

	printJSON(resp)
}
