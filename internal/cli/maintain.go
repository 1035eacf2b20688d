package cli

import (
	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/store"
)

func init() {
	rebuildCmd := &cobra.Command{
		Use:   "rebuild-cache <project>",
		Short: "Rebuild fingerprints for every active item in a project",
		Long: "Rebuild fingerprints for every active item in a project and drop cache rows " +
			"whose items are gone. Items without a stored embedding are re-embedded in the " +
			"same pass. Use after restoring a database or changing hash settings.",
		Args: cobra.ExactArgs(1),
		Run:  runRebuildCache,
	}

	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire stale pending proposals across all projects",
		Run:   runExpire,
	}

	RootCmd.AddCommand(rebuildCmd, expireCmd)
}

func runRebuildCache(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.maintainer.RebuildProject(store.ProjectID(args[0]))
	if err != nil {
		exitErr("rebuild-cache", err)
	}

	printJSON(resp)
}

func runExpire(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	n, err := a.merge.ExpireStale()
	if err != nil {
		exitErr("expire", err)
	}

	printJSON(map[string]int64{"expired": n})
}
