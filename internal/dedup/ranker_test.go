package dedup

import (
	"math"
	"testing"

	"github.com/memfold/memfold/internal/models"
)

func rankItem(id string, memType models.MemoryType, tags ...string) *models.MemoryItem {
	return &models.MemoryItem{ID: id, MemoryType: memType, Tags: tags}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRankCandidates(t *testing.T) {
	t.Run("scores pairs by cosine similarity", func(t *testing.T) {
		items := map[string]*models.MemoryItem{
			"a": rankItem("a", models.MemoryTypeFact),
			"b": rankItem("b", models.MemoryTypeFact),
		}
		vectors := map[string][]float32{
			"a": {3, 4},
			"b": {4, 3},
		}
		pairs := []Pair{{ID1: "a", ID2: "b", SimhashDistance: 3, MinhashSimilarity: 0.75, Matched: models.MethodBoth}}

		ranked := RankCandidates(pairs, items, vectors, 0.85, 10)
		if len(ranked) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(ranked))
		}
		c := ranked[0]
		if !almostEqual(c.Similarity, 0.96) {
			t.Errorf("similarity = %f, want 0.96", c.Similarity)
		}
		if c.Method != models.MethodEmbedding {
			t.Errorf("method = %s, want embedding", c.Method)
		}
		// Stage-1 diagnostics ride along unchanged.
		if c.SimhashDistance != 3 || c.MinhashSimilarity != 0.75 {
			t.Errorf("stage-1 diagnostics lost: %+v", c)
		}
	})

	t.Run("drops pairs below the threshold", func(t *testing.T) {
		items := map[string]*models.MemoryItem{
			"a": rankItem("a", models.MemoryTypeFact),
			"b": rankItem("b", models.MemoryTypeFact),
		}
		vectors := map[string][]float32{
			"a": {1, 0},
			"b": {0, 1},
		}
		ranked := RankCandidates([]Pair{{ID1: "a", ID2: "b"}}, items, vectors, 0.85, 10)
		if len(ranked) != 0 {
			t.Fatalf("orthogonal vectors must not survive ranking: %+v", ranked)
		}
	})

	t.Run("drops pairs missing a vector on either side", func(t *testing.T) {
		items := map[string]*models.MemoryItem{
			"a": rankItem("a", models.MemoryTypeFact),
			"b": rankItem("b", models.MemoryTypeFact),
		}
		vectors := map[string][]float32{"a": {1, 0}}
		ranked := RankCandidates([]Pair{{ID1: "a", ID2: "b"}}, items, vectors, 0.85, 10)
		if len(ranked) != 0 {
			t.Fatalf("vectorless pair must be dropped: %+v", ranked)
		}
	})

	t.Run("orders by similarity with deterministic ID tie-breaks", func(t *testing.T) {
		items := map[string]*models.MemoryItem{
			"p": rankItem("p", models.MemoryTypeFact),
			"q": rankItem("q", models.MemoryTypeFact),
			"x": rankItem("x", models.MemoryTypeFact),
			"y": rankItem("y", models.MemoryTypeFact),
		}
		same := []float32{1, 0}
		vectors := map[string][]float32{"p": same, "q": same, "x": same, "y": same}

		// Insertion order deliberately reversed relative to the expected output.
		pairs := []Pair{{ID1: "x", ID2: "y"}, {ID1: "p", ID2: "q"}}
		ranked := RankCandidates(pairs, items, vectors, 0.85, 10)
		if len(ranked) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(ranked))
		}
		if ranked[0].ID1 != "p" || ranked[1].ID1 != "x" {
			t.Fatalf("tie not broken by ID: %s before %s", ranked[0].ID1, ranked[1].ID1)
		}
	})

	t.Run("caps how many surviving pairs one item appears in", func(t *testing.T) {
		items := map[string]*models.MemoryItem{
			"a": rankItem("a", models.MemoryTypeFact),
			"b": rankItem("b", models.MemoryTypeFact),
			"c": rankItem("c", models.MemoryTypeFact),
			"d": rankItem("d", models.MemoryTypeFact),
		}
		vectors := map[string][]float32{
			"a": {1, 0},
			"b": {1, 0},  // sim(a,b) = 1.0
			"c": {4, 3},  // sim(a,c) = 0.8
			"d": {24, 7}, // sim(a,d) = 0.96, sim(c,d) = 0.936
		}
		pairs := []Pair{
			{ID1: "a", ID2: "b"},
			{ID1: "a", ID2: "c"},
			{ID1: "a", ID2: "d"},
			{ID1: "c", ID2: "d"},
		}

		ranked := RankCandidates(pairs, items, vectors, 0.7, 1)
		if len(ranked) != 2 {
			t.Fatalf("expected 2 candidates, got %d: %+v", len(ranked), ranked)
		}
		// a's quota is spent on its best pair; c/d are still under quota.
		if ranked[0].ID1 != "a" || ranked[0].ID2 != "b" {
			t.Errorf("best pair for a should win: %+v", ranked[0])
		}
		if ranked[1].ID1 != "c" || ranked[1].ID2 != "d" {
			t.Errorf("pair between under-quota items should survive: %+v", ranked[1])
		}
	})

	t.Run("zero tuning values fall back to defaults", func(t *testing.T) {
		items := map[string]*models.MemoryItem{
			"a": rankItem("a", models.MemoryTypeFact),
			"b": rankItem("b", models.MemoryTypeFact),
		}
		vectors := map[string][]float32{"a": {24, 7}, "b": {1, 0}} // 0.96
		ranked := RankCandidates([]Pair{{ID1: "a", ID2: "b"}}, items, vectors, 0, 0)
		if len(ranked) != 1 {
			t.Fatalf("0.96 must survive the default 0.85 threshold, got %d candidates", len(ranked))
		}
	})
}

func TestClassifyConfidence(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		a, b       *models.MemoryItem
		want       models.ConfidenceLevel
	}{
		{
			name:       "high needs same type and corroborating tags",
			similarity: 0.95,
			a:          rankItem("a", models.MemoryTypeFact, "api", "auth"),
			b:          rankItem("b", models.MemoryTypeFact, "api"),
			want:       models.ConfidenceHigh,
		},
		{
			name:       "exactly 0.90 still qualifies for high",
			similarity: 0.90,
			a:          rankItem("a", models.MemoryTypePreference, "ui"),
			b:          rankItem("b", models.MemoryTypePreference, "ui"),
			want:       models.ConfidenceHigh,
		},
		{
			name:       "untagged items top out at medium",
			similarity: 0.95,
			a:          rankItem("a", models.MemoryTypeFact),
			b:          rankItem("b", models.MemoryTypeFact),
			want:       models.ConfidenceMedium,
		},
		{
			name:       "type mismatch tops out at medium",
			similarity: 0.95,
			a:          rankItem("a", models.MemoryTypeFact, "api"),
			b:          rankItem("b", models.MemoryTypeDecision, "api"),
			want:       models.ConfidenceMedium,
		},
		{
			name:       "disjoint tags top out at medium",
			similarity: 0.95,
			a:          rankItem("a", models.MemoryTypeFact, "api"),
			b:          rankItem("b", models.MemoryTypeFact, "billing"),
			want:       models.ConfidenceMedium,
		},
		{
			name:       "middle band is medium",
			similarity: 0.85,
			a:          rankItem("a", models.MemoryTypeFact, "api"),
			b:          rankItem("b", models.MemoryTypeFact, "api"),
			want:       models.ConfidenceMedium,
		},
		{
			name:       "below 0.80 is low",
			similarity: 0.75,
			a:          rankItem("a", models.MemoryTypeFact, "api"),
			b:          rankItem("b", models.MemoryTypeFact, "api"),
			want:       models.ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyConfidence(tt.similarity, tt.a, tt.b); got != tt.want {
				t.Errorf("classifyConfidence(%f) = %s, want %s", tt.similarity, got, tt.want)
			}
		})
	}
}

func TestTagOverlapRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both untagged", nil, nil, 0},
		{"identical single tag", []string{"api"}, []string{"api"}, 1},
		{"case and whitespace folded", []string{"API "}, []string{"api"}, 1},
		{"partial overlap", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"one side untagged", []string{"a"}, nil, 0},
		{"duplicate tags collapse", []string{"a", "a", "b"}, []string{"a", "b"}, 1},
		{"blank tags ignored", []string{" "}, []string{" "}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tagOverlapRatio(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("tagOverlapRatio(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
