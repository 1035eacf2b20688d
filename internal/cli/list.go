package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/models"
)

func init() {
	listCmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List memory items for a project",
		Args:  cobra.ExactArgs(1),
		Run:   runList,
	}

	listCmd.Flags().StringP("type", "t", "", "Filter by memory type")
	listCmd.Flags().IntP("limit", "l", 50, "Maximum items to return")
	listCmd.Flags().Bool("all", false, "Include merged-away items")
	listCmd.Flags().Bool("ids-only", false, "Print one item ID per line")

	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "List known projects",
		Run:   runProjects,
	}

	RootCmd.AddCommand(listCmd, projectsCmd)
}

func runList(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	all, _ := cmd.Flags().GetBool("all")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.memory.List(args[0], &models.ListRequest{
		MemoryType: models.MemoryType(memType),
		ActiveOnly: !all,
		Limit:      limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, item := range resp.Items {
			fmt.Println(item.ID)
		}
		return
	}

	printJSON(resp)
}

func runProjects(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	projects, err := a.memory.Projects()
	if err != nil {
		exitErr("projects", err)
	}

	printJSON(projects)
}
