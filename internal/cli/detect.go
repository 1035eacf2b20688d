package cli

import (
	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "detect <project>",
		Short: "Scan a project for near-duplicate memories",
		Long: "Scan a project for near-duplicate memories. Stage 1 compares fingerprints, " +
			"stage 2 ranks the surviving pairs by embedding similarity.",
		Args: cobra.ExactArgs(1),
		Run:  runDetect,
	}

	cmd.Flags().StringP("type", "t", "", "Restrict the scan to one memory type")
	cmd.Flags().Float64("threshold", 0, "Semantic similarity threshold (0 uses the configured default)")
	cmd.Flags().IntP("limit", "l", 0, "Maximum candidate pairs to return")
	cmd.Flags().Bool("stage1", false, "Stop after the fingerprint stage (fast, approximate)")
	cmd.Flags().Bool("propose", false, "File merge proposals for detected pairs")

	RootCmd.AddCommand(cmd)
}

func runDetect(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	limit, _ := cmd.Flags().GetInt("limit")
	stage1, _ := cmd.Flags().GetBool("stage1")
	propose, _ := cmd.Flags().GetBool("propose")

	req := &models.DetectRequest{
		MemoryType:          models.MemoryType(memType),
		Limit:               limit,
		Stage1Only:          stage1,
		AutoCreateProposals: propose,
	}
	if threshold > 0 {
		req.Threshold = &threshold
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	result, err := a.merge.Detect(store.ProjectID(args[0]), req)
	if err != nil {
		exitErr("detect", err)
	}

	printJSON(result)
}
