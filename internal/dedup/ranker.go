package dedup

import (
	"sort"
	"strings"

	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/vectors"
)

// Stage-2 ranking defaults.
const (
	DefaultSemanticThreshold = 0.85
	DefaultTopKPerItem       = 10
)

// RankCandidates scores stage-1 pairs by embedding cosine similarity, drops
// pairs below the threshold, classifies confidence, and caps how many
// surviving pairs any single item appears in. A pair missing a vector on
// either side is silently dropped: no vector, no semantic judgment.
func RankCandidates(pairs []Pair, items map[string]*models.MemoryItem, vecs map[string][]float32, threshold float64, topKPerItem int) []models.DuplicateCandidate {
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}
	if topKPerItem <= 0 {
		topKPerItem = DefaultTopKPerItem
	}

	var ranked []models.DuplicateCandidate
	for _, p := range pairs {
		v1, ok1 := vecs[p.ID1]
		v2, ok2 := vecs[p.ID2]
		if !ok1 || !ok2 {
			continue
		}
		a, b := items[p.ID1], items[p.ID2]
		if a == nil || b == nil {
			continue
		}

		sim := vectors.Cosine(v1, v2)
		if sim < threshold {
			continue
		}

		ranked = append(ranked, models.DuplicateCandidate{
			ID1:               p.ID1,
			ID2:               p.ID2,
			Similarity:        sim,
			Confidence:        classifyConfidence(sim, a, b),
			Method:            models.MethodEmbedding,
			SimhashDistance:   p.SimhashDistance,
			MinhashSimilarity: p.MinhashSimilarity,
		})
	}

	sortCandidates(ranked)

	// Per-item quota: without it a hub item pairs with every neighbor and
	// floods the list.
	appearances := make(map[string]int)
	kept := ranked[:0]
	for _, c := range ranked {
		if appearances[c.ID1] >= topKPerItem || appearances[c.ID2] >= topKPerItem {
			continue
		}
		appearances[c.ID1]++
		appearances[c.ID2]++
		kept = append(kept, c)
	}
	return kept
}

// sortCandidates orders by similarity descending, with ID tie-breaks so runs
// over the same data always rank identically.
func sortCandidates(cands []models.DuplicateCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Similarity != cands[j].Similarity {
			return cands[i].Similarity > cands[j].Similarity
		}
		if cands[i].ID1 != cands[j].ID1 {
			return cands[i].ID1 < cands[j].ID1
		}
		return cands[i].ID2 < cands[j].ID2
	})
}

func classifyConfidence(similarity float64, a, b *models.MemoryItem) models.ConfidenceLevel {
	switch {
	case similarity >= 0.90:
		if a.MemoryType == b.MemoryType && tagOverlapRatio(a.Tags, b.Tags) > 0.3 {
			return models.ConfidenceHigh
		}
		return models.ConfidenceMedium
	case similarity >= 0.80:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// tagOverlapRatio is the Jaccard overlap of two tag sets, case-folded. Two
// untagged items overlap 0: high confidence needs corroborating tags.
func tagOverlapRatio(a, b []string) float64 {
	setA := tagSet(a)
	setB := tagSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	union := len(setA)
	for t := range setB {
		if setA[t] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}
