package dedup

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/safety"
	"github.com/memfold/memfold/internal/store"
	"github.com/memfold/memfold/internal/vectors"
)

// DefaultCandidateLimit caps the ranked list returned by one detection run.
const DefaultCandidateLimit = 50

// Tuning holds the detection thresholds. A zero field selects its default,
// so Tuning{} is a valid configuration.
type Tuning struct {
	SimhashMaxDistance   int
	MinhashMinSimilarity float64
	SemanticThreshold    float64
	CandidateLimit       int
	TopKPerItem          int
}

func (t *Tuning) fillDefaults() {
	if t.SimhashMaxDistance <= 0 {
		t.SimhashMaxDistance = DefaultSimhashThreshold
	}
	if t.MinhashMinSimilarity <= 0 {
		t.MinhashMinSimilarity = DefaultMinhashThreshold
	}
	if t.SemanticThreshold <= 0 {
		t.SemanticThreshold = DefaultSemanticThreshold
	}
	if t.CandidateLimit <= 0 {
		t.CandidateLimit = DefaultCandidateLimit
	}
	if t.TopKPerItem <= 0 {
		t.TopKPerItem = DefaultTopKPerItem
	}
}

// Detector orchestrates the two detection stages over one project's items.
type Detector struct {
	items    *store.ItemStore
	cache    *store.HashCacheStore
	embedder *embedding.CachedEmbedder
	tuning   Tuning
	logger   *slog.Logger
}

// NewDetector builds a detector. embedder may be nil, in which case stage 2
// can only use embeddings already stored on items.
func NewDetector(items *store.ItemStore, cache *store.HashCacheStore, embedder *embedding.CachedEmbedder, tuning Tuning, logger *slog.Logger) *Detector {
	tuning.fillDefaults()
	return &Detector{
		items:    items,
		cache:    cache,
		embedder: embedder,
		tuning:   tuning,
		logger:   logger,
	}
}

// Options controls one detection run.
type Options struct {
	ProjectID  string
	MemoryType models.MemoryType // empty means all types
	Threshold  float64           // 0 means DefaultSemanticThreshold
	Limit      int               // 0 means DefaultCandidateLimit
	Stage1Only bool
}

// Detect runs the full pipeline: load the scan set, fingerprint it, find
// stage-1 pairs, and (unless Stage1Only) rank them semantically. Detection
// writes nothing; proposal creation is the caller's decision.
func (d *Detector) Detect(opts Options) (*models.DetectionResult, error) {
	started := time.Now()

	result := &models.DetectionResult{
		Candidates: []models.DuplicateCandidate{},
		Stats:      models.DetectionStats{ByType: map[string]int{}},
	}

	scan, err := d.items.ActiveMergeable(opts.ProjectID, opts.MemoryType)
	if err != nil {
		return nil, fmt.Errorf("load scan set: %w", err)
	}
	result.Stats.ItemsScanned = len(scan)
	for _, item := range scan {
		result.Stats.ByType[string(item.MemoryType)]++
	}

	// Nothing to pair up.
	if len(scan) < 2 {
		result.Timings.TotalMs = time.Since(started).Milliseconds()
		return result, nil
	}

	stage1Start := time.Now()
	fps, misses, err := d.fingerprints(opts.ProjectID, scan)
	if err != nil {
		return nil, err
	}

	pairs := FindCandidatePairs(fps, d.tuning.SimhashMaxDistance, d.tuning.MinhashMinSimilarity)
	result.Stats.PairsCompared = len(scan) * (len(scan) - 1) / 2
	result.Stats.Stage1Candidates = len(pairs)
	result.Timings.Stage1Ms = time.Since(stage1Start).Milliseconds()

	limit := opts.Limit
	if limit <= 0 {
		limit = d.tuning.CandidateLimit
	}

	stage2Start := time.Now()
	if opts.Stage1Only {
		cands := stage1Candidates(pairs)
		sortCandidates(cands)
		result.Stats.RankedPairs = len(cands)
		result.Candidates = truncate(cands, limit)
	} else {
		itemsByID := make(map[string]*models.MemoryItem, len(scan))
		for _, item := range scan {
			itemsByID[item.ID] = item
		}
		threshold := opts.Threshold
		if threshold <= 0 {
			threshold = d.tuning.SemanticThreshold
		}
		admitted := admissiblePairs(pairs, itemsByID)
		vecs := d.loadVectors(itemsByID, admitted)
		ranked := RankCandidates(admitted, itemsByID, vecs, threshold, d.tuning.TopKPerItem)
		result.Stats.RankedPairs = len(ranked)
		result.Candidates = truncate(ranked, limit)
	}
	result.Timings.Stage2Ms = time.Since(stage2Start).Milliseconds()
	result.Timings.TotalMs = time.Since(started).Milliseconds()

	d.logger.Info("detection run complete",
		"project", opts.ProjectID,
		"scanned", result.Stats.ItemsScanned,
		"cache_misses", misses,
		"stage1_pairs", result.Stats.Stage1Candidates,
		"candidates", len(result.Candidates),
		"total_ms", result.Timings.TotalMs,
	)
	return result, nil
}

// fingerprints returns one fingerprint per scan item, taking fresh cache rows
// and computing the rest in memory. Detection never writes the cache; the
// maintainer owns that, and may be running concurrently.
func (d *Detector) fingerprints(projectID string, scan []*models.MemoryItem) ([]ItemFingerprint, int, error) {
	cached, err := d.cache.ForProject(projectID)
	if err != nil {
		return nil, 0, fmt.Errorf("load hash cache: %w", err)
	}

	fps := make([]ItemFingerprint, 0, len(scan))
	misses := 0
	for _, item := range scan {
		fp := ItemFingerprint{ID: item.ID}
		entry := cached[item.ID]
		if entry != nil && entry.ContentHash == fingerprint.ContentHash(item.Content) {
			fp.SimHash = entry.SimHash
			fp.MinHash = entry.MinHash
		} else {
			misses++
			fp.SimHash = fingerprint.SimHash(item.Content)
			fp.MinHash = fingerprint.MinHashSignature(item.Content)
		}
		fps = append(fps, fp)
	}

	if misses > 0 {
		d.logger.Debug("fingerprints computed on the fly", "project", projectID, "misses", misses)
	}
	return fps, misses, nil
}

// loadVectors collects embeddings for every item that appears in a stage-1
// pair: the stored vector when present, otherwise one embedding request.
// Failures just leave the item vectorless, which drops its pairs in ranking.
func (d *Detector) loadVectors(items map[string]*models.MemoryItem, pairs []Pair) map[string][]float32 {
	needed := make(map[string]bool, len(pairs)*2)
	for _, p := range pairs {
		needed[p.ID1] = true
		needed[p.ID2] = true
	}

	vecs := make(map[string][]float32, len(needed))
	for id := range needed {
		item := items[id]
		if item == nil {
			continue
		}
		if len(item.Embedding) > 0 {
			if vec := vectors.Decode(item.Embedding); len(vec) > 0 {
				vecs[id] = vec
			}
			continue
		}
		if d.embedder == nil {
			continue
		}
		vec, err := d.embedder.Embed(item.Content)
		if err != nil {
			d.logger.Debug("embedding unavailable, pair will be skipped", "id", id, "error", err)
			continue
		}
		vecs[id] = vec
	}
	return vecs
}

// admissiblePairs drops pairs the merge gate would block before any
// embedding work is spent on them. In an all-types scan this is what keeps
// cross-type hash collisions out of stage 2.
func admissiblePairs(pairs []Pair, items map[string]*models.MemoryItem) []Pair {
	kept := pairs[:0]
	for _, p := range pairs {
		a, b := items[p.ID1], items[p.ID2]
		if a == nil || b == nil {
			continue
		}
		if safety.CheckBlockers([]*models.MemoryItem{a, b}) != "" {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// stage1Candidates maps raw pairs to candidates without semantic ranking,
// approximating similarity from the stronger of the two stage-1 signals.
func stage1Candidates(pairs []Pair) []models.DuplicateCandidate {
	cands := make([]models.DuplicateCandidate, 0, len(pairs))
	for _, p := range pairs {
		approx := 1 - float64(p.SimhashDistance)/64
		if p.MinhashSimilarity > approx {
			approx = p.MinhashSimilarity
		}
		cands = append(cands, models.DuplicateCandidate{
			ID1:               p.ID1,
			ID2:               p.ID2,
			Similarity:        approx,
			Confidence:        models.ConfidenceLow,
			Method:            p.Matched,
			SimhashDistance:   p.SimhashDistance,
			MinhashSimilarity: p.MinhashSimilarity,
		})
	}
	return cands
}

func truncate(cands []models.DuplicateCandidate, limit int) []models.DuplicateCandidate {
	if len(cands) > limit {
		return cands[:limit]
	}
	return cands
}
