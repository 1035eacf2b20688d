package merge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memfold/memfold/internal/models"
)

// Output is the materialized result of one merge strategy run.
type Output struct {
	Content          string
	Summary          string
	Tags             []string
	Metadata         map[string]any
	MergeReason      string
	ConflictWarnings []string
	Strategy         string
}

// Merge dispatches on the sources' shared memory type and materializes the
// consolidated item. It never touches storage.
func Merge(sources []*models.MemoryItem) (*Output, error) {
	if len(sources) < 2 {
		return nil, fmt.Errorf("%w: need at least two sources, got %d", models.ErrStrategyFailed, len(sources))
	}
	for _, src := range sources[1:] {
		if src.MemoryType != sources[0].MemoryType {
			return nil, fmt.Errorf("%w: sources have different types: %s and %s",
				models.ErrStrategyFailed, sources[0].MemoryType, src.MemoryType)
		}
	}

	switch sources[0].MemoryType {
	case models.MemoryTypeFact:
		return mergeFacts(sources), nil
	case models.MemoryTypePreference:
		return mergePreferences(sources), nil
	case models.MemoryTypeDecision:
		return mergeDecisions(sources), nil
	case models.MemoryTypeObservation:
		return mergeObservations(sources), nil
	case models.MemoryTypeContext:
		return mergeContexts(sources), nil
	default:
		return nil, fmt.Errorf("%w: no strategy for type %q", models.ErrStrategyFailed, sources[0].MemoryType)
	}
}

// mergeFacts unions sentences across sources into a deduplicated, sorted
// set and joins them back into prose. Order carries no meaning for facts,
// so sorting buys determinism for free.
func mergeFacts(sources []*models.MemoryItem) *Output {
	seen := make(map[string]bool)
	var sentences []string
	for _, src := range sources {
		for _, s := range splitSentences(src.Content) {
			if !seen[s] {
				seen[s] = true
				sentences = append(sentences, s)
			}
		}
	}
	sort.Strings(sentences)

	provenance := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		provenance = append(provenance, map[string]any{
			"id":        src.ID,
			"createdAt": src.CreatedAt,
			"origin":    src.UserID,
		})
	}

	return &Output{
		Content:  strings.Join(sentences, " "),
		Summary:  fmt.Sprintf("Consolidated %d facts", len(sources)),
		Tags:     tagUnion(sources),
		Metadata: map[string]any{
			"mergedFrom": provenance,
			"mergeCount": len(sources),
		},
		MergeReason: fmt.Sprintf("merged %d overlapping facts into one", len(sources)),
		Strategy:    "fact",
	}
}

// mergePreferences keeps the most recent statement verbatim; older versions
// survive only in the metadata timeline. Divergent contents produce a
// conflict warning so the reviewer knows an older phrasing is being dropped.
func mergePreferences(sources []*models.MemoryItem) *Output {
	ordered := sortedByCreatedAsc(sources)
	latest := ordered[len(ordered)-1]

	var warnings []string
	diverged := false
	for _, src := range ordered[:len(ordered)-1] {
		if src.Content != latest.Content {
			diverged = true
			break
		}
	}
	if diverged {
		warnings = append(warnings, fmt.Sprintf(
			"preferences diverge: keeping latest from %s, superseding %d older version(s)",
			formatDay(latest.CreatedAt), len(ordered)-1))
	}

	return &Output{
		Content:  latest.Content,
		Summary:  fmt.Sprintf("Latest preference of %d recorded versions", len(ordered)),
		Tags:     tagUnion(sources),
		Metadata: map[string]any{
			"timeline": timeline(ordered),
		},
		MergeReason:      fmt.Sprintf("kept the most recent of %d preference statements", len(ordered)),
		ConflictWarnings: warnings,
		Strategy:         "preference",
	}
}

// mergeDecisions works like preferences, but names the superseded decisions
// explicitly: a reversed decision trail matters more than a preference one.
func mergeDecisions(sources []*models.MemoryItem) *Output {
	ordered := sortedByCreatedAsc(sources)
	latest := ordered[len(ordered)-1]

	superseded := make([]string, 0, len(ordered)-1)
	for _, src := range ordered[:len(ordered)-1] {
		superseded = append(superseded, src.ID)
	}

	var warnings []string
	for _, src := range ordered[:len(ordered)-1] {
		if src.Content != latest.Content {
			warnings = append(warnings, fmt.Sprintf(
				"decisions diverge: keeping latest from %s, superseding %d older version(s)",
				formatDay(latest.CreatedAt), len(ordered)-1))
			break
		}
	}

	return &Output{
		Content:  latest.Content,
		Summary:  fmt.Sprintf("Current decision, superseding %d earlier", len(superseded)),
		Tags:     tagUnion(sources),
		Metadata: map[string]any{
			"timeline":   timeline(ordered),
			"supersedes": superseded,
		},
		MergeReason:      fmt.Sprintf("latest decision supersedes %s", strings.Join(superseded, ", ")),
		ConflictWarnings: warnings,
		Strategy:         "decision",
	}
}

// mergeObservations builds a chronological bulleted list. Repeats are kept
// on purpose: how often something was observed is part of the signal.
func mergeObservations(sources []*models.MemoryItem) *Output {
	ordered := sortedByCreatedAsc(sources)

	lines := make([]string, 0, len(ordered))
	entries := make([]map[string]any, 0, len(ordered))
	for _, src := range ordered {
		lines = append(lines, fmt.Sprintf("- [%s] %s", formatDay(src.CreatedAt), src.Content))
		entries = append(entries, map[string]any{
			"id":        src.ID,
			"createdAt": src.CreatedAt,
			"content":   src.Content,
		})
	}

	return &Output{
		Content:  strings.Join(lines, "\n"),
		Summary:  fmt.Sprintf("Observation timeline, %d entries", len(ordered)),
		Tags:     tagUnion(sources),
		Metadata: map[string]any{
			"firstObserved": ordered[0].CreatedAt,
			"lastObserved":  ordered[len(ordered)-1].CreatedAt,
			"observations":  entries,
		},
		MergeReason: fmt.Sprintf("combined %d observations into a timeline", len(ordered)),
		Strategy:    "observation",
	}
}

// mergeContexts deduplicates by exact content match only; context blocks are
// too structured for sentence splitting to be safe.
func mergeContexts(sources []*models.MemoryItem) *Output {
	seen := make(map[string]bool)
	var unique []string
	removed := 0
	for _, src := range sources {
		entry := strings.TrimSpace(src.Content)
		if seen[entry] {
			removed++
			continue
		}
		seen[entry] = true
		unique = append(unique, entry)
	}
	sort.Strings(unique)

	lines := make([]string, 0, len(unique))
	for _, entry := range unique {
		lines = append(lines, "- "+entry)
	}

	return &Output{
		Content:  strings.Join(lines, "\n"),
		Summary:  fmt.Sprintf("Merged context, %d unique entries", len(unique)),
		Tags:     tagUnion(sources),
		Metadata: map[string]any{
			"duplicatesRemoved": removed,
		},
		MergeReason: fmt.Sprintf("deduplicated %d context entries into %d", len(sources), len(unique)),
		Strategy:    "context",
	}
}

// splitSentences cuts prose at runs of .!? followed by whitespace or end of
// text, keeping the terminator attached. Dotted numbers and abbreviations
// without trailing space stay intact.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !isTerminator(text[i]) {
			continue
		}
		j := i + 1
		for j < len(text) && isTerminator(text[j]) {
			j++
		}
		if j < len(text) && !isSpace(text[j]) {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(text[start:j]); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// sortedByCreatedAsc returns a copy ordered oldest first, with ID tie-breaks
// for items created in the same second.
func sortedByCreatedAsc(sources []*models.MemoryItem) []*models.MemoryItem {
	ordered := make([]*models.MemoryItem, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt != ordered[j].CreatedAt {
			return ordered[i].CreatedAt < ordered[j].CreatedAt
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// timeline flattens sources, oldest first, for strategy metadata.
func timeline(ordered []*models.MemoryItem) []map[string]any {
	entries := make([]map[string]any, 0, len(ordered))
	for _, src := range ordered {
		entries = append(entries, map[string]any{
			"id":        src.ID,
			"createdAt": src.CreatedAt,
			"content":   src.Content,
		})
	}
	return entries
}

// tagUnion merges tag sets: case-folded, deduplicated, sorted.
func tagUnion(sources []*models.MemoryItem) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, src := range sources {
		for _, t := range src.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	if tags == nil {
		tags = []string{}
	}
	return tags
}

func formatDay(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02")
}

// estimateTokens approximates token count as one per four characters, the
// usual rule of thumb for English prose.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TokensSaved estimates how many context tokens a merge frees up. Never
// negative: an observation merge can legitimately produce longer output.
func TokensSaved(sources []*models.MemoryItem, mergedContent string) int {
	total := 0
	for _, src := range sources {
		total += estimateTokens(src.Content)
	}
	saved := total - estimateTokens(mergedContent)
	if saved < 0 {
		saved = 0
	}
	return saved
}
