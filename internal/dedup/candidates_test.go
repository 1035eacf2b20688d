package dedup

import (
	"testing"

	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
)

func fp(id, content string) ItemFingerprint {
	return ItemFingerprint{
		ID:      id,
		SimHash: fingerprint.SimHash(content),
		MinHash: fingerprint.MinHashSignature(content),
	}
}

func TestFindCandidatePairs(t *testing.T) {
	tests := []struct {
		name        string
		a, b        string
		wantMatch   bool
		wantMethod  models.DetectionMethod
		wantDist    int
		wantJaccard float64
	}{
		{
			name:        "near-identical wording trips the simhash filter",
			a:           "the user prefers dark mode for better readability",
			b:           "the user prefers dark mode for improved visibility",
			wantMatch:   true,
			wantMethod:  models.MethodSimhash,
			wantDist:    2,
			wantJaccard: 0.53125,
		},
		{
			name:        "superset content trips the minhash filter",
			a:           "User prefers dark mode.",
			b:           "User prefers dark mode. User uses VSCode.",
			wantMatch:   true,
			wantMethod:  models.MethodMinhash,
			wantDist:    13,
			wantJaccard: 0.734375,
		},
		{
			name:        "one-word difference trips both filters",
			a:           "ran the full test suite after the schema change",
			b:           "ran the full test suite after the config change",
			wantMatch:   true,
			wantMethod:  models.MethodBoth,
			wantDist:    0,
			wantJaccard: 0.71875,
		},
		{
			name:        "exact duplicates trip both filters",
			a:           "standup moved to tuesday mornings",
			b:           "standup moved to tuesday mornings",
			wantMatch:   true,
			wantMethod:  models.MethodBoth,
			wantDist:    0,
			wantJaccard: 1.0,
		},
		{
			name:      "short opposing statements pass cleanly",
			a:         "Prefers tabs",
			b:         "Prefers spaces",
			wantMatch: false,
		},
		{
			name:      "unrelated content passes cleanly",
			a:         "the user prefers dark mode for better readability",
			b:         "the user loves python for backend development",
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := FindCandidatePairs(
				[]ItemFingerprint{fp("a", tt.a), fp("b", tt.b)},
				DefaultSimhashThreshold, DefaultMinhashThreshold,
			)

			if !tt.wantMatch {
				if len(pairs) != 0 {
					t.Fatalf("expected no pair, got %+v", pairs)
				}
				return
			}

			if len(pairs) != 1 {
				t.Fatalf("expected 1 pair, got %d", len(pairs))
			}
			p := pairs[0]
			if p.Matched != tt.wantMethod {
				t.Errorf("method = %s, want %s", p.Matched, tt.wantMethod)
			}
			if p.SimhashDistance != tt.wantDist {
				t.Errorf("simhash distance = %d, want %d", p.SimhashDistance, tt.wantDist)
			}
			if p.MinhashSimilarity != tt.wantJaccard {
				t.Errorf("minhash similarity = %f, want %f", p.MinhashSimilarity, tt.wantJaccard)
			}
		})
	}
}

func TestFindCandidatePairsThresholds(t *testing.T) {
	// Hamming distance 16, Jaccard 0.375: invisible at the defaults.
	a := fp("a", "Prefers tabs")
	b := fp("b", "Prefers spaces")

	t.Run("loose simhash threshold admits the pair", func(t *testing.T) {
		pairs := FindCandidatePairs([]ItemFingerprint{a, b}, 16, DefaultMinhashThreshold)
		if len(pairs) != 1 || pairs[0].Matched != models.MethodSimhash {
			t.Fatalf("expected one simhash pair, got %+v", pairs)
		}
	})

	t.Run("loose minhash threshold admits the pair", func(t *testing.T) {
		pairs := FindCandidatePairs([]ItemFingerprint{a, b}, DefaultSimhashThreshold, 0.3)
		if len(pairs) != 1 || pairs[0].Matched != models.MethodMinhash {
			t.Fatalf("expected one minhash pair, got %+v", pairs)
		}
	})

	t.Run("loosening both reports both", func(t *testing.T) {
		pairs := FindCandidatePairs([]ItemFingerprint{a, b}, 16, 0.3)
		if len(pairs) != 1 || pairs[0].Matched != models.MethodBoth {
			t.Fatalf("expected one pair matched by both, got %+v", pairs)
		}
	})
}

func TestFindCandidatePairsComparesEveryPairOnce(t *testing.T) {
	// Three copies of the same content: 3 unordered pairs, no self-pairs,
	// no mirrored duplicates.
	fps := []ItemFingerprint{
		fp("a", "standup moved to tuesday mornings"),
		fp("b", "standup moved to tuesday mornings"),
		fp("c", "standup moved to tuesday mornings"),
	}
	pairs := FindCandidatePairs(fps, DefaultSimhashThreshold, DefaultMinhashThreshold)
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(pairs))
	}
	seen := map[string]bool{}
	for _, p := range pairs {
		if p.ID1 == p.ID2 {
			t.Fatalf("self-pair %s", p.ID1)
		}
		key := p.ID1 + "/" + p.ID2
		if seen[key] {
			t.Fatalf("duplicate pair %s", key)
		}
		seen[key] = true
	}
}
