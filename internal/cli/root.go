// Package cli implements the memfold CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memfold/memfold/internal/config"
	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/memory"
	"github.com/memfold/memfold/internal/merge"
	"github.com/memfold/memfold/internal/store"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memfold",
	Short: "Duplicate detection and reversible merges for memory stores",
	Long: "memfold finds near-duplicate memory items, proposes merges for review, " +
		"and applies approved merges with full snapshots so every merge can be reversed.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MEMFOLD_DB_PATH or ~/.memfold/memfold.db)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MEMFOLD_DB_PATH"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memfold", "memfold.db")
}

// app bundles the service stack for one CLI invocation.
type app struct {
	db         *store.DB
	memory     *memory.Service
	merge      *merge.Service
	maintainer *dedup.Maintainer
}

// openApp wires the full stack against the local database. Service logs go
// to stderr at warn level so stdout stays clean JSON.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	db, err := store.Open(getDBPath())
	if err != nil {
		return nil, err
	}

	projects := store.NewProjectStore(db)
	items := store.NewItemStore(db)
	proposals := store.NewProposalStore(db)
	history := store.NewHistoryStore(db)
	hashes := store.NewHashCacheStore(db)
	embCache := store.NewEmbeddingCacheStore(db)

	ollama := embedding.NewOllamaClient(cfg.OllamaBaseURL, cfg.EmbeddingModel)
	embedder := embedding.NewCachedEmbedder(ollama, embCache)

	detector := dedup.NewDetector(items, hashes, embedder, dedup.Tuning{
		SimhashMaxDistance:   cfg.Policy.SimhashMaxDistance,
		MinhashMinSimilarity: cfg.Policy.MinhashMinSimilarity,
		SemanticThreshold:    cfg.Policy.SemanticThreshold,
		CandidateLimit:       cfg.Policy.CandidateLimit,
		TopKPerItem:          cfg.Policy.TopKPerItem,
	}, logger)
	maintainer := dedup.NewMaintainer(items, hashes, embedder, logger)
	guard := memory.NewDeduplicator(hashes, logger)

	return &app{
		db:         db,
		memory:     memory.NewService(projects, items, embedder, guard, maintainer, logger),
		merge:      merge.NewService(db, items, proposals, history, hashes, detector, embedder, cfg.Policy.ProposalTTL(), logger),
		maintainer: maintainer,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
