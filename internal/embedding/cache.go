package embedding

import (
	"fmt"

	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/store"
	"github.com/memfold/memfold/internal/vectors"
)

// CachedEmbedder wraps an OllamaClient with content-hash caching via SQLite.
// Items with identical content share one cache row, keyed by the same hash
// the fingerprint cache uses for staleness checks.
type CachedEmbedder struct {
	client *OllamaClient
	cache  *store.EmbeddingCacheStore
}

func NewCachedEmbedder(client *OllamaClient, cache *store.EmbeddingCacheStore) *CachedEmbedder {
	return &CachedEmbedder{
		client: client,
		cache:  cache,
	}
}

// Embed returns the embedding for text, using cache when available.
func (e *CachedEmbedder) Embed(text string) ([]float32, error) {
	hash := fingerprint.ContentHash(text)

	entry, err := e.cache.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if entry != nil {
		return vectors.Decode(entry.Embedding), nil
	}

	vec, err := e.client.Embed(text)
	if err != nil {
		return nil, err
	}

	// Cache writes are best effort.
	_ = e.cache.Put(&models.EmbeddingCacheEntry{
		ContentHash: hash,
		Embedding:   vectors.Encode(vec),
		Dimension:   len(vec),
		Model:       e.client.Model(),
	})

	return vec, nil
}

// EmbedBatch returns embeddings for several texts, aligned with the input
// order. Cached texts are served locally; the misses go to Ollama in a
// single request.
func (e *CachedEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		entry, err := e.cache.Get(fingerprint.ContentHash(text))
		if err != nil {
			return nil, fmt.Errorf("cache lookup: %w", err)
		}
		if entry != nil {
			out[i] = vectors.Decode(entry.Embedding)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.client.EmbedBatch(missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		_ = e.cache.Put(&models.EmbeddingCacheEntry{
			ContentHash: fingerprint.ContentHash(missTexts[j]),
			Embedding:   vectors.Encode(vec),
			Dimension:   len(vec),
			Model:       e.client.Model(),
		})
	}
	return out, nil
}

// HealthCheck reports whether the backing Ollama instance is reachable.
func (e *CachedEmbedder) HealthCheck() error {
	return e.client.HealthCheck()
}
