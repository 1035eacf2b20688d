package merge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/safety"
	"github.com/memfold/memfold/internal/store"
)

// DefaultProposalTTL is how long a pending proposal stays reviewable before
// the expiry sweep retires it.
const DefaultProposalTTL = 7 * 24 * time.Hour

// Service coordinates the dedup pipeline end to end: detection, proposal
// review, merge application, and reversal.
type Service struct {
	db        *store.DB
	items     *store.ItemStore
	proposals *store.ProposalStore
	history   *store.HistoryStore
	cache     *store.HashCacheStore
	detector  *dedup.Detector
	embedder  *embedding.CachedEmbedder
	ttl       time.Duration
	logger    *slog.Logger
}

// NewService builds the merge service. embedder may be nil; canonical items
// are then stored without a vector and picked up by a later embedding pass.
func NewService(
	db *store.DB,
	items *store.ItemStore,
	proposals *store.ProposalStore,
	history *store.HistoryStore,
	cache *store.HashCacheStore,
	detector *dedup.Detector,
	embedder *embedding.CachedEmbedder,
	proposalTTL time.Duration,
	logger *slog.Logger,
) *Service {
	if proposalTTL <= 0 {
		proposalTTL = DefaultProposalTTL
	}
	return &Service{
		db:        db,
		items:     items,
		proposals: proposals,
		history:   history,
		cache:     cache,
		detector:  detector,
		embedder:  embedder,
		ttl:       proposalTTL,
		logger:    logger,
	}
}

// Detect runs duplicate detection for a project and optionally turns the
// detected pairs into pending proposals. Detection itself is read-only, so a
// broken store degrades to an empty result instead of an error.
func (s *Service) Detect(projectID string, req *models.DetectRequest) (*models.DetectionResult, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", models.ErrInvalidInput)
	}
	if req == nil {
		req = &models.DetectRequest{}
	}
	if req.MemoryType != "" && !req.MemoryType.IsValid() {
		return nil, fmt.Errorf("%w: invalid memory type %q", models.ErrInvalidInput, req.MemoryType)
	}
	var threshold float64
	if req.Threshold != nil {
		threshold = *req.Threshold
		if threshold <= 0 || threshold > 1 {
			return nil, fmt.Errorf("%w: threshold must be in (0, 1], got %v", models.ErrInvalidInput, threshold)
		}
	}

	result, err := s.detector.Detect(dedup.Options{
		ProjectID:  projectID,
		MemoryType: req.MemoryType,
		Threshold:  threshold,
		Limit:      req.Limit,
		Stage1Only: req.Stage1Only,
	})
	if err != nil {
		s.logger.Error("detection failed, returning empty result", "project", projectID, "error", err)
		return &models.DetectionResult{
			Candidates: []models.DuplicateCandidate{},
			Stats:      models.DetectionStats{ByType: map[string]int{}},
		}, nil
	}

	// Stage-1-only runs are diagnostics; their approximate scores are not
	// good enough to propose merges from.
	if req.AutoCreateProposals && !req.Stage1Only {
		result.ProposalsCreated = s.createProposals(projectID, result.Candidates)
	}
	return result, nil
}

// createProposals materializes a pending proposal for each candidate pair
// that passes the safety gate and is not already awaiting review. Failures
// are logged and skipped; detection output is still useful without them.
func (s *Service) createProposals(projectID string, cands []models.DuplicateCandidate) []string {
	created := []string{}

	pending, err := s.proposals.AllPending(projectID)
	if err != nil {
		s.logger.Error("load pending proposals", "project", projectID, "error", err)
		return created
	}
	proposed := make(map[string]bool, len(pending))
	for _, p := range pending {
		proposed[pairKey(p.SourceIDs)] = true
	}

	byID, err := s.loadCandidateItems(cands)
	if err != nil {
		s.logger.Error("load candidate items", "project", projectID, "error", err)
		return created
	}

	now := time.Now().Unix()
	for _, c := range cands {
		key := pairKey([]string{c.ID1, c.ID2})
		if proposed[key] {
			continue
		}
		a, b := byID[c.ID1], byID[c.ID2]
		if a == nil || b == nil {
			continue
		}
		sources := []*models.MemoryItem{a, b}

		gate := safety.CheckMerge(sources, c.Similarity)
		if !gate.Allowed {
			s.logger.Debug("pair not proposable", "id1", c.ID1, "id2", c.ID2, "blockers", gate.Blockers)
			continue
		}
		out, err := Merge(sources)
		if err != nil {
			s.logger.Warn("strategy failed for detected pair", "id1", c.ID1, "id2", c.ID2, "error", err)
			continue
		}

		expires := now + int64(s.ttl.Seconds())
		proposal := &models.MergeProposal{
			ID:               uuid.New().String(),
			ProjectID:        projectID,
			SourceIDs:        []string{c.ID1, c.ID2},
			ProposedContent:  out.Content,
			ProposedSummary:  out.Summary,
			ProposedTags:     out.Tags,
			ProposedMetadata: out.Metadata,
			DetectionMethod:  c.Method,
			SimilarityScore:  c.Similarity,
			Confidence:       c.Confidence,
			MergeReason:      out.MergeReason,
			ConflictWarnings: append(out.ConflictWarnings, gate.Warnings...),
			Status:           models.ProposalPending,
			CreatedAt:        now,
			ExpiresAt:        &expires,
		}
		if err := s.proposals.Insert(proposal); err != nil {
			s.logger.Error("insert proposal", "id1", c.ID1, "id2", c.ID2, "error", err)
			continue
		}
		proposed[key] = true
		created = append(created, proposal.ID)
	}

	if len(created) > 0 {
		s.logger.Info("proposals created from detection", "project", projectID, "count", len(created))
	}
	return created
}

// loadCandidateItems batch-loads every item referenced by the candidate list.
func (s *Service) loadCandidateItems(cands []models.DuplicateCandidate) (map[string]*models.MemoryItem, error) {
	seen := make(map[string]bool, len(cands)*2)
	ids := make([]string, 0, len(cands)*2)
	for _, c := range cands {
		for _, id := range []string{c.ID1, c.ID2} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	items, err := s.items.GetByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.MemoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID, nil
}

// pairKey is an order-independent identity for a source-id set, used to skip
// pairs that already have a pending proposal.
func pairKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// ListProposals returns a project's proposals, optionally filtered by status.
// Stale pending proposals are swept to expired before listing so reviewers
// never see dead entries.
func (s *Service) ListProposals(projectID, status string, limit, offset int) (*models.ProposalListResponse, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", models.ErrInvalidInput)
	}
	var st models.ProposalStatus
	if status != "" {
		st = models.ProposalStatus(status)
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: invalid proposal status %q", models.ErrInvalidInput, status)
		}
	}

	if n, err := s.proposals.ExpireStale(time.Now().Unix()); err != nil {
		s.logger.Warn("expiry sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("stale proposals expired", "count", n)
	}

	proposals, total, err := s.proposals.List(projectID, st, limit, offset)
	if err != nil {
		s.logger.Error("list proposals failed, returning empty", "project", projectID, "error", err)
		return &models.ProposalListResponse{Proposals: []*models.MergeProposal{}}, nil
	}
	return &models.ProposalListResponse{Proposals: proposals, Total: total}, nil
}

// ListHistory returns a project's merge history, newest first.
func (s *Service) ListHistory(projectID string, limit int) ([]*models.MergeHistory, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", models.ErrInvalidInput)
	}
	history, err := s.history.ListForProject(projectID, limit)
	if err != nil {
		s.logger.Error("list history failed, returning empty", "project", projectID, "error", err)
		return []*models.MergeHistory{}, nil
	}
	if history == nil {
		history = []*models.MergeHistory{}
	}
	return history, nil
}

// Stats aggregates the project's dedup counters. Each counter degrades to
// zero on storage failure; stats never error beyond input validation.
func (s *Service) Stats(projectID string) (*models.DedupStats, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", models.ErrInvalidInput)
	}
	stats := &models.DedupStats{
		ProjectID:         projectID,
		ItemsByType:       map[string]int{},
		ProposalsByStatus: map[string]int{},
	}

	active, merged, canonical, byType, err := s.items.CountByProject(projectID)
	if err != nil {
		s.logger.Error("count items", "project", projectID, "error", err)
	} else {
		stats.ActiveItems = active
		stats.MergedItems = merged
		stats.CanonicalItems = canonical
		stats.ItemsByType = byType
	}

	if counts, err := s.proposals.CountByStatus(projectID); err != nil {
		s.logger.Warn("count proposals", "project", projectID, "error", err)
	} else {
		stats.ProposalsByStatus = counts
	}

	if total, reversed, saved, err := s.history.CountForProject(projectID); err != nil {
		s.logger.Warn("count history", "project", projectID, "error", err)
	} else {
		stats.HistoryCount = total
		stats.ReversedCount = reversed
		stats.TokensSaved = saved
	}

	if n, err := s.cache.CountForProject(projectID); err != nil {
		s.logger.Warn("count cache entries", "project", projectID, "error", err)
	} else {
		stats.CacheEntries = n
	}
	if n, err := s.cache.MissingForProject(projectID); err != nil {
		s.logger.Warn("count missing cache entries", "project", projectID, "error", err)
	} else {
		stats.ItemsMissingCache = n
	}

	return stats, nil
}

// ExpireStale retires pending proposals whose review window has passed.
func (s *Service) ExpireStale() (int64, error) {
	n, err := s.proposals.ExpireStale(time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: expire proposals: %v", models.ErrStorageUnavailable, err)
	}
	if n > 0 {
		s.logger.Info("stale proposals expired", "count", n)
	}
	return n, nil
}
