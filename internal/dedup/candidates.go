// Package dedup implements two-stage duplicate detection over memory items:
// a fast fingerprint prefilter followed by embedding-based semantic ranking.
package dedup

import (
	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
)

// Stage-1 prefilter defaults.
const (
	DefaultSimhashThreshold = 4
	DefaultMinhashThreshold = 0.7
)

// ItemFingerprint carries one item's two fingerprints through stage 1.
type ItemFingerprint struct {
	ID      string
	SimHash uint64
	MinHash fingerprint.Signature
}

// Pair is one stage-1 candidate pair. Matched records which filter fired
// (simhash, minhash, or both), kept for diagnostics.
type Pair struct {
	ID1               string
	ID2               string
	SimhashDistance   int
	MinhashSimilarity float64
	Matched           models.DetectionMethod
}

// FindCandidatePairs compares every unordered pair of fingerprints once and
// keeps a pair when either filter fires: Hamming distance at most
// simhashThreshold, or Jaccard estimate at least minhashThreshold. The union
// favors recall over precision; stage 2 re-filters whatever slips through.
//
// This is the quadratic bottleneck of detection. Fine for the store sizes a
// single assistant accumulates; banded LSH bucketing is the known next step
// if that stops being true.
func FindCandidatePairs(fps []ItemFingerprint, simhashThreshold int, minhashThreshold float64) []Pair {
	var pairs []Pair
	for i := 0; i < len(fps); i++ {
		for j := i + 1; j < len(fps); j++ {
			dist := fingerprint.HammingDistance(fps[i].SimHash, fps[j].SimHash)
			jaccard := fingerprint.JaccardEstimate(&fps[i].MinHash, &fps[j].MinHash)

			simhashHit := dist <= simhashThreshold
			minhashHit := jaccard >= minhashThreshold
			if !simhashHit && !minhashHit {
				continue
			}

			matched := models.MethodSimhash
			switch {
			case simhashHit && minhashHit:
				matched = models.MethodBoth
			case minhashHit:
				matched = models.MethodMinhash
			}

			pairs = append(pairs, Pair{
				ID1:               fps[i].ID,
				ID2:               fps[j].ID,
				SimhashDistance:   dist,
				MinhashSimilarity: jaccard,
				Matched:           matched,
			})
		}
	}
	return pairs
}
