package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memfold/memfold/internal/api"
	"github.com/memfold/memfold/internal/config"
	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/memory"
	"github.com/memfold/memfold/internal/merge"
	"github.com/memfold/memfold/internal/store"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	projectStore := store.NewProjectStore(db)
	itemStore := store.NewItemStore(db)
	proposalStore := store.NewProposalStore(db)
	historyStore := store.NewHistoryStore(db)
	hashStore := store.NewHashCacheStore(db)
	embCacheStore := store.NewEmbeddingCacheStore(db)

	// Embedding with cache
	ollamaClient := embedding.NewOllamaClient(cfg.OllamaBaseURL, cfg.EmbeddingModel)
	embedder := embedding.NewCachedEmbedder(ollamaClient, embCacheStore)

	// Detection
	detector := dedup.NewDetector(itemStore, hashStore, embedder, dedup.Tuning{
		SimhashMaxDistance:   cfg.Policy.SimhashMaxDistance,
		MinhashMinSimilarity: cfg.Policy.MinhashMinSimilarity,
		SemanticThreshold:    cfg.Policy.SemanticThreshold,
		CandidateLimit:       cfg.Policy.CandidateLimit,
		TopKPerItem:          cfg.Policy.TopKPerItem,
	}, logger)
	maintainer := dedup.NewMaintainer(itemStore, hashStore, embedder, logger)

	// Services
	guard := memory.NewDeduplicator(hashStore, logger)
	memSvc := memory.NewService(projectStore, itemStore, embedder, guard, maintainer, logger)
	mergeSvc := merge.NewService(
		db, itemStore, proposalStore, historyStore, hashStore,
		detector, embedder, cfg.Policy.ProposalTTL(), logger,
	)

	if err := ollamaClient.HealthCheck(); err != nil {
		logger.Warn("ollama not available at startup, items will be stored without vectors", "error", err)
	}

	// Background maintenance
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := merge.NewSweeper(mergeSvc, maintainer, cfg.Policy.SweepInterval(), logger)
	go sweeper.Run(sweepCtx)

	// Router
	router := api.NewRouter(db, memSvc, mergeSvc, maintainer, ollamaClient, cfg.APIKey, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("memfold server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
