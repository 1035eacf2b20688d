package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory item",
		Long: "Delete a memory item. By default the item is archived and stays restorable; " +
			"--hard removes the row permanently.",
		Args: cobra.ExactArgs(1),
		Run:  runRm,
	}

	cmd.Flags().Bool("hard", false, "Remove the row permanently")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	hard, _ := cmd.Flags().GetBool("hard")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if err := a.memory.Delete(args[0], hard); err != nil {
		exitErr("rm", err)
	}

	fmt.Println(`{"deleted": true}`)
}
