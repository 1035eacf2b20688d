package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "preview <proposal-id>",
		Short: "Preview what approving a proposal would produce",
		Long: "Preview what approving a proposal would produce right now. The output flags " +
			"drift when the source items changed since the proposal was filed.",
		Args: cobra.ExactArgs(1),
		Run:  runPreview,
	}

	RootCmd.AddCommand(cmd)
}

func runPreview(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.merge.Preview(args[0])
	if err != nil {
		exitErr("preview", err)
	}

	printJSON(resp)
}
