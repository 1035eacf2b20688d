package dedup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/store"
	"github.com/memfold/memfold/internal/vectors"
)

// Maintainer keeps the hash cache aligned with item content. It runs inline
// on item writes and in bulk from the rebuild endpoint; detection never
// waits for it.
type Maintainer struct {
	items    *store.ItemStore
	cache    *store.HashCacheStore
	embedder *embedding.CachedEmbedder
	logger   *slog.Logger
}

// NewMaintainer builds a Maintainer. embedder may be nil, in which case
// rebuilds skip the vector backfill.
func NewMaintainer(items *store.ItemStore, cache *store.HashCacheStore, embedder *embedding.CachedEmbedder, logger *slog.Logger) *Maintainer {
	return &Maintainer{
		items:    items,
		cache:    cache,
		embedder: embedder,
		logger:   logger,
	}
}

// NewCacheEntry computes a fresh fingerprint row for an item.
func NewCacheEntry(item *models.MemoryItem) *models.HashCacheEntry {
	return &models.HashCacheEntry{
		MemoryID:    item.ID,
		SimHash:     fingerprint.SimHash(item.Content),
		MinHash:     fingerprint.MinHashSignature(item.Content),
		ContentHash: fingerprint.ContentHash(item.Content),
		UpdatedAt:   time.Now().Unix(),
	}
}

// IsStale reports whether a cache entry no longer matches the item's
// current content. A missing entry counts as stale.
func IsStale(item *models.MemoryItem, entry *models.HashCacheEntry) bool {
	return entry == nil || entry.ContentHash != fingerprint.ContentHash(item.Content)
}

// UpdateCache recomputes and stores an item's fingerprints.
func (m *Maintainer) UpdateCache(item *models.MemoryItem) error {
	if err := m.cache.Upsert(NewCacheEntry(item)); err != nil {
		return fmt.Errorf("update cache for %s: %w", item.ID, err)
	}
	return nil
}

// RebuildProject recomputes fingerprints for every active item in a project,
// backfills missing embeddings, and sweeps orphaned cache rows. Individual
// failures are counted, not fatal.
func (m *Maintainer) RebuildProject(projectID string) (*models.RebuildResponse, error) {
	items, err := m.items.AllActive(projectID)
	if err != nil {
		return nil, fmt.Errorf("load project items: %w", err)
	}

	resp := &models.RebuildResponse{}
	for _, item := range items {
		resp.Processed++
		if err := m.UpdateCache(item); err != nil {
			resp.Failed++
			m.logger.Warn("fingerprint rebuild failed", "id", item.ID, "error", err)
			continue
		}
		resp.Succeeded++
	}
	resp.Embedded = m.backfillEmbeddings(items)

	orphans, err := m.cache.DeleteOrphans()
	if err != nil {
		return nil, fmt.Errorf("cleanup orphans: %w", err)
	}
	resp.Orphans = int(orphans)

	m.logger.Info("hash cache rebuilt",
		"project", projectID,
		"processed", resp.Processed,
		"failed", resp.Failed,
		"embedded", resp.Embedded,
		"orphans_removed", resp.Orphans,
	)
	return resp, nil
}

// backfillEmbeddings stores vectors for items that have none, in one batch
// request. Items lack vectors when embedding was unavailable at write time,
// so the rebuild doubles as the catch-up pass.
func (m *Maintainer) backfillEmbeddings(items []*models.MemoryItem) int {
	if m.embedder == nil {
		return 0
	}
	var missing []*models.MemoryItem
	for _, item := range items {
		if len(item.Embedding) == 0 {
			missing = append(missing, item)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	texts := make([]string, len(missing))
	for i, item := range missing {
		texts[i] = item.Content
	}
	vecs, err := m.embedder.EmbedBatch(texts)
	if err != nil {
		m.logger.Warn("embedding backfill skipped", "count", len(missing), "error", err)
		return 0
	}

	embedded := 0
	for i, item := range missing {
		if i >= len(vecs) || len(vecs[i]) == 0 {
			continue
		}
		if err := m.items.UpdateEmbedding(item.ID, vectors.Encode(vecs[i])); err != nil {
			m.logger.Warn("embedding backfill write failed", "id", item.ID, "error", err)
			continue
		}
		embedded++
	}
	return embedded
}

// CleanupOrphans removes cache rows whose items are gone.
func (m *Maintainer) CleanupOrphans() (int64, error) {
	return m.cache.DeleteOrphans()
}
