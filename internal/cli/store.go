package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store <project> [content]",
		Short: "Store a memory item",
		Long:  "Store a memory item. Content can be a positional arg or piped via stdin.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runStore,
	}

	cmd.Flags().StringP("type", "t", "fact", "Memory type: fact, preference, decision, observation, context")
	cmd.Flags().StringP("summary", "s", "", "One-line summary")
	cmd.Flags().String("tags", "", "Comma-separated tags")
	cmd.Flags().Float64P("confidence", "c", 0.8, "Confidence 0.0-1.0")
	cmd.Flags().Bool("private", false, "Mark the item private")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) {
	project := args[0]
	memType, _ := cmd.Flags().GetString("type")
	summary, _ := cmd.Flags().GetString("summary")
	tagsStr, _ := cmd.Flags().GetString("tags")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	private, _ := cmd.Flags().GetBool("private")

	// Content: positional arg first, then stdin
	var content string
	if len(args) > 1 {
		content = strings.Join(args[1:], " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	if strings.TrimSpace(content) == "" {
		exitErr("store", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	resp, err := a.memory.Store(project, &models.StoreRequest{
		Content:    strings.TrimSpace(content),
		MemoryType: models.MemoryType(memType),
		Summary:    summary,
		Tags:       splitTags(tagsStr),
		Confidence: confidence,
		IsPrivate:  private,
	})
	if err != nil {
		exitErr("store", err)
	}

	printJSON(resp)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
