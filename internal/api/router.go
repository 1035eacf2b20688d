package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/memory"
	"github.com/memfold/memfold/internal/merge"
	"github.com/memfold/memfold/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	memSvc *memory.Service,
	mergeSvc *merge.Service,
	maintainer *dedup.Maintainer,
	ollama *embedding.OllamaClient,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	// Handlers
	healthH := NewHealthHandler(db, ollama)
	memoryH := NewMemoryHandler(memSvc)
	dedupH := NewDedupHandler(mergeSvc, maintainer)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Get("/projects", memoryH.Projects)

		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/memories", memoryH.List)
			r.Post("/memories", memoryH.Store)
			r.Post("/memories/bulk", memoryH.BulkStore)

			r.Route("/dedup", func(r chi.Router) {
				r.Post("/detect", dedupH.Detect)
				r.Get("/proposals", dedupH.ListProposals)
				r.Get("/stats", dedupH.Stats)
				r.Get("/history", dedupH.History)
				r.Post("/cache/rebuild", dedupH.RebuildCache)
			})
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/{id}", memoryH.Get)
			r.Patch("/{id}", memoryH.Update)
			r.Delete("/{id}", memoryH.Delete)
		})

		// Proposal review and reversal work on globally unique IDs, so
		// they sit outside the project subtree.
		r.Route("/dedup", func(r chi.Router) {
			r.Get("/proposals/{id}/preview", dedupH.Preview)
			r.Post("/proposals/{id}/approve", dedupH.Approve)
			r.Post("/proposals/{id}/reject", dedupH.Reject)
			r.Post("/history/{id}/reverse", dedupH.Reverse)
			r.Post("/expire", dedupH.Expire)
		})
	})

	return r
}
