package merge

import (
	"errors"
	"strings"
	"testing"

	"github.com/memfold/memfold/internal/models"
)

// Midnight UTC timestamps so formatted days are unambiguous.
const (
	day1 = int64(1704067200) // 2024-01-01
	day2 = int64(1704153600) // 2024-01-02
	day3 = int64(1704240000) // 2024-01-03
)

func mergeItem(id string, memType models.MemoryType, content string, createdAt int64, tags ...string) *models.MemoryItem {
	return &models.MemoryItem{
		ID:         id,
		MemoryType: memType,
		Content:    content,
		Tags:       tags,
		CreatedAt:  createdAt,
	}
}

func TestMergeValidation(t *testing.T) {
	t.Run("rejects fewer than two sources", func(t *testing.T) {
		_, err := Merge([]*models.MemoryItem{mergeItem("a", models.MemoryTypeFact, "x", day1)})
		if !errors.Is(err, models.ErrStrategyFailed) {
			t.Fatalf("expected ErrStrategyFailed, got %v", err)
		}
	})

	t.Run("rejects mixed types", func(t *testing.T) {
		_, err := Merge([]*models.MemoryItem{
			mergeItem("a", models.MemoryTypeFact, "x", day1),
			mergeItem("b", models.MemoryTypeDecision, "y", day2),
		})
		if !errors.Is(err, models.ErrStrategyFailed) {
			t.Fatalf("expected ErrStrategyFailed, got %v", err)
		}
	})

	t.Run("rejects unknown types", func(t *testing.T) {
		_, err := Merge([]*models.MemoryItem{
			mergeItem("a", models.MemoryType("mystery"), "x", day1),
			mergeItem("b", models.MemoryType("mystery"), "y", day2),
		})
		if !errors.Is(err, models.ErrStrategyFailed) {
			t.Fatalf("expected ErrStrategyFailed, got %v", err)
		}
	})
}

func TestMergeFacts(t *testing.T) {
	out, err := Merge([]*models.MemoryItem{
		mergeItem("a", models.MemoryTypeFact, "User prefers dark mode.", day1, "UI", "theme"),
		mergeItem("b", models.MemoryTypeFact, "User prefers dark mode. User uses VSCode.", day2, "ui", "editor"),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if out.Strategy != "fact" {
		t.Errorf("strategy = %s", out.Strategy)
	}
	// The shared sentence appears once; union is sorted.
	want := "User prefers dark mode. User uses VSCode."
	if out.Content != want {
		t.Errorf("content = %q, want %q", out.Content, want)
	}
	if out.Summary != "Consolidated 2 facts" {
		t.Errorf("summary = %q", out.Summary)
	}
	wantTags := []string{"editor", "theme", "ui"}
	if len(out.Tags) != len(wantTags) {
		t.Fatalf("tags = %v, want %v", out.Tags, wantTags)
	}
	for i := range wantTags {
		if out.Tags[i] != wantTags[i] {
			t.Fatalf("tags = %v, want %v", out.Tags, wantTags)
		}
	}
	if out.Metadata["mergeCount"] != 2 {
		t.Errorf("mergeCount = %v", out.Metadata["mergeCount"])
	}
	provenance, ok := out.Metadata["mergedFrom"].([]map[string]any)
	if !ok || len(provenance) != 2 {
		t.Errorf("mergedFrom = %v", out.Metadata["mergedFrom"])
	}
	if len(out.ConflictWarnings) != 0 {
		t.Errorf("fact merges never warn: %v", out.ConflictWarnings)
	}
}

func TestMergePreferences(t *testing.T) {
	t.Run("keeps the latest statement and warns on divergence", func(t *testing.T) {
		out, err := Merge([]*models.MemoryItem{
			mergeItem("new", models.MemoryTypePreference, "Prefers spaces", day2),
			mergeItem("old", models.MemoryTypePreference, "Prefers tabs", day1),
		})
		if err != nil {
			t.Fatalf("merge: %v", err)
		}

		if out.Content != "Prefers spaces" {
			t.Errorf("content = %q, want the newest statement", out.Content)
		}
		if len(out.ConflictWarnings) != 1 || !strings.Contains(out.ConflictWarnings[0], "diverge") {
			t.Errorf("expected a divergence warning, got %v", out.ConflictWarnings)
		}
		timeline, ok := out.Metadata["timeline"].([]map[string]any)
		if !ok || len(timeline) != 2 {
			t.Fatalf("timeline = %v", out.Metadata["timeline"])
		}
		if timeline[0]["id"] != "old" || timeline[1]["id"] != "new" {
			t.Errorf("timeline must run oldest first: %v", timeline)
		}
	})

	t.Run("identical statements merge without warnings", func(t *testing.T) {
		out, err := Merge([]*models.MemoryItem{
			mergeItem("a", models.MemoryTypePreference, "Prefers tabs", day1),
			mergeItem("b", models.MemoryTypePreference, "Prefers tabs", day2),
		})
		if err != nil {
			t.Fatalf("merge: %v", err)
		}
		if len(out.ConflictWarnings) != 0 {
			t.Errorf("unexpected warnings: %v", out.ConflictWarnings)
		}
	})
}

func TestMergeDecisions(t *testing.T) {
	out, err := Merge([]*models.MemoryItem{
		mergeItem("d1", models.MemoryTypeDecision, "Use REST for the public API", day1),
		mergeItem("d2", models.MemoryTypeDecision, "Use gRPC internally, REST publicly", day2),
		mergeItem("d3", models.MemoryTypeDecision, "Use gRPC everywhere", day3),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if out.Content != "Use gRPC everywhere" {
		t.Errorf("content = %q, want the latest decision", out.Content)
	}
	superseded, ok := out.Metadata["supersedes"].([]string)
	if !ok || len(superseded) != 2 {
		t.Fatalf("supersedes = %v", out.Metadata["supersedes"])
	}
	if superseded[0] != "d1" || superseded[1] != "d2" {
		t.Errorf("supersedes must list older decisions oldest first: %v", superseded)
	}
	if !strings.Contains(out.MergeReason, "d1") || !strings.Contains(out.MergeReason, "d2") {
		t.Errorf("merge reason must name the superseded decisions: %q", out.MergeReason)
	}
	if len(out.ConflictWarnings) != 1 {
		t.Errorf("divergent decisions must warn: %v", out.ConflictWarnings)
	}
}

func TestMergeObservations(t *testing.T) {
	// Passed newest first; output must still be chronological, and the
	// repeated observation must survive.
	out, err := Merge([]*models.MemoryItem{
		mergeItem("o3", models.MemoryTypeObservation, "build passed", day3),
		mergeItem("o1", models.MemoryTypeObservation, "build passed", day1),
		mergeItem("o2", models.MemoryTypeObservation, "build failed on arm64", day2),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	want := "- [2024-01-01] build passed\n- [2024-01-02] build failed on arm64\n- [2024-01-03] build passed"
	if out.Content != want {
		t.Errorf("content =\n%q\nwant\n%q", out.Content, want)
	}
	if out.Metadata["firstObserved"] != day1 || out.Metadata["lastObserved"] != day3 {
		t.Errorf("observation range wrong: %v", out.Metadata)
	}
	if out.Strategy != "observation" {
		t.Errorf("strategy = %s", out.Strategy)
	}
}

func TestMergeContexts(t *testing.T) {
	out, err := Merge([]*models.MemoryItem{
		mergeItem("c1", models.MemoryTypeContext, "monorepo, pnpm workspaces", day1),
		mergeItem("c2", models.MemoryTypeContext, "  monorepo, pnpm workspaces  ", day2),
		mergeItem("c3", models.MemoryTypeContext, "deploys from main via CI", day3),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	want := "- deploys from main via CI\n- monorepo, pnpm workspaces"
	if out.Content != want {
		t.Errorf("content =\n%q\nwant\n%q", out.Content, want)
	}
	if out.Metadata["duplicatesRemoved"] != 1 {
		t.Errorf("duplicatesRemoved = %v", out.Metadata["duplicatesRemoved"])
	}
	if out.Summary != "Merged context, 2 unique entries" {
		t.Errorf("summary = %q", out.Summary)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"two sentences", "User prefers dark mode. User uses VSCode.", []string{"User prefers dark mode.", "User uses VSCode."}},
		{"dotted number stays intact", "Version 2.5 shipped.", []string{"Version 2.5 shipped."}},
		{"terminator runs stay together", "Really?! Yes.", []string{"Really?!", "Yes."}},
		{"no terminator", "no terminator here", []string{"no terminator here"}},
		{"empty", "", nil},
		{"trailing text without terminator", "Done. And then some", []string{"Done.", "And then some"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("splitSentences(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("splitSentences(%q) = %v, want %v", tt.text, got, tt.want)
				}
			}
		})
	}
}

func TestTagUnion(t *testing.T) {
	got := tagUnion([]*models.MemoryItem{
		{Tags: []string{"API", " auth "}},
		{Tags: []string{"api", "billing"}},
		{Tags: nil},
	})
	want := []string{"api", "auth", "billing"}
	if len(got) != len(want) {
		t.Fatalf("tagUnion = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tagUnion = %v, want %v", got, want)
		}
	}

	if empty := tagUnion([]*models.MemoryItem{{}, {}}); empty == nil || len(empty) != 0 {
		t.Errorf("untagged sources must produce an empty, non-nil slice, got %v", empty)
	}
}

func TestTokensSaved(t *testing.T) {
	sources := []*models.MemoryItem{
		{Content: strings.Repeat("a", 40)}, // 10 tokens
		{Content: strings.Repeat("b", 40)}, // 10 tokens
	}

	if saved := TokensSaved(sources, strings.Repeat("c", 40)); saved != 10 {
		t.Errorf("saved = %d, want 10", saved)
	}
	// An observation merge can come out longer than its inputs.
	if saved := TokensSaved(sources, strings.Repeat("c", 400)); saved != 0 {
		t.Errorf("saved = %d, want 0 when output grows", saved)
	}
}
