// Package safety gates merges. Every proposal passes through the same checks
// at creation time (to attach warnings) and again at approval time (to block
// merges whose sources changed since review started).
package safety

import (
	"fmt"

	"github.com/memfold/memfold/internal/models"
)

// MinMergeSimilarity is the floor below which a merge is never allowed,
// regardless of how it was detected.
const MinMergeSimilarity = 0.70

// Result reports the outcome of the merge gate. Blockers make the merge
// inadmissible; warnings surface to the reviewer but do not block.
type Result struct {
	Allowed  bool     `json:"allowed"`
	Blockers []string `json:"blockers,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// CheckMerge runs every gate check over the source items of a prospective
// merge. All checks run even after the first blocker, so the reviewer sees
// the complete picture at once.
func CheckMerge(sources []*models.MemoryItem, similarity float64) Result {
	r := Result{Allowed: true}

	block := func(format string, args ...any) {
		r.Allowed = false
		r.Blockers = append(r.Blockers, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	}

	for _, src := range sources {
		if !src.IsMergeable {
			block("source %s is marked not mergeable", src.ID)
		}
	}

	for _, src := range sources[1:] {
		if src.MemoryType != sources[0].MemoryType {
			block("sources have different types: %s and %s", sources[0].MemoryType, src.MemoryType)
			break
		}
	}

	for _, src := range sources {
		if src.IsMerged {
			block("source %s is already merged", src.ID)
		}
	}

	if similarity < MinMergeSimilarity {
		block("similarity %.2f is below the %.2f minimum", similarity, MinMergeSimilarity)
	}

	for _, src := range sources {
		if !src.IsActive {
			block("source %s is inactive", src.ID)
		}
	}

	users := make(map[string]bool)
	for _, src := range sources {
		if src.UserID != "" {
			users[src.UserID] = true
		}
	}
	if len(users) > 1 {
		warn("sources belong to %d different users", len(users))
	}

	private := 0
	for _, src := range sources {
		if src.IsPrivate {
			private++
		}
	}
	if private > 0 && private < len(sources) {
		warn("sources mix private and non-private items")
	}

	for _, src := range sources {
		if src.HasSecrets {
			warn("source %s may contain secrets", src.ID)
		}
	}

	return r
}

// CheckBlockers is the fast-path variant of CheckMerge: it stops at the
// first blocker and skips warnings and the similarity check entirely. Used
// as a cheap pre-filter before expensive ranking.
func CheckBlockers(sources []*models.MemoryItem) string {
	for _, src := range sources {
		if !src.IsMergeable {
			return fmt.Sprintf("source %s is marked not mergeable", src.ID)
		}
		if src.IsMerged {
			return fmt.Sprintf("source %s is already merged", src.ID)
		}
		if !src.IsActive {
			return fmt.Sprintf("source %s is inactive", src.ID)
		}
	}
	for _, src := range sources[1:] {
		if src.MemoryType != sources[0].MemoryType {
			return fmt.Sprintf("sources have different types: %s and %s", sources[0].MemoryType, src.MemoryType)
		}
	}
	return ""
}
