package memory

import (
	"log/slog"

	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/store"
)

// Deduplicator is the ingest-time guard against storing the same content
// twice. It collapses byte-identical content only; near-duplicates are left
// to detection and the review workflow, which never discards data without a
// human decision.
type Deduplicator struct {
	cache  *store.HashCacheStore
	logger *slog.Logger
}

func NewDeduplicator(cache *store.HashCacheStore, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{cache: cache, logger: logger}
}

// CheckExact returns the ID of an existing active item holding exactly this
// content, or "" when the content is new. A failing guard reports the error
// and waves the item through.
func (d *Deduplicator) CheckExact(projectID string, memoryType models.MemoryType, content string) string {
	id, err := d.cache.FindActiveByContentHash(projectID, memoryType, fingerprint.ContentHash(content))
	if err != nil {
		d.logger.Warn("duplicate guard unavailable", "project", projectID, "error", err)
		return ""
	}
	return id
}
