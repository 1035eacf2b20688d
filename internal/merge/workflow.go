package merge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/safety"
	"github.com/memfold/memfold/internal/store"
	"github.com/memfold/memfold/internal/vectors"
)

// Preview recomputes a proposal's merge against the current state of its
// sources. Drifted is set when the live output no longer matches what the
// proposal recorded, which means a source was edited after detection.
func (s *Service) Preview(proposalID string) (*models.PreviewResponse, error) {
	if proposalID == "" {
		return nil, fmt.Errorf("%w: proposal id is required", models.ErrInvalidInput)
	}
	p, err := s.proposals.GetByID(proposalID)
	if err != nil {
		return nil, fmt.Errorf("%w: load proposal: %v", models.ErrStorageUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: proposal %s", models.ErrNotFound, proposalID)
	}

	sources, err := s.loadSources(p.SourceIDs)
	if err != nil {
		return nil, err
	}
	out, err := Merge(sources)
	if err != nil {
		return nil, err
	}

	return &models.PreviewResponse{
		Proposal: p,
		Sources:  sources,
		Live: &models.MergePreview{
			Content:          out.Content,
			Summary:          out.Summary,
			Tags:             out.Tags,
			Metadata:         out.Metadata,
			MergeReason:      out.MergeReason,
			ConflictWarnings: out.ConflictWarnings,
			TokensSaved:      TokensSaved(sources, out.Content),
		},
		Drifted: out.Content != p.ProposedContent,
	}, nil
}

// Approve applies a pending proposal: the safety gate and merge strategy
// re-run against current item state, then the canonical item, source
// archival, history row, and proposal flip commit in one transaction.
func (s *Service) Approve(proposalID string, req *models.ReviewRequest) (*models.ApproveResponse, error) {
	if proposalID == "" {
		return nil, fmt.Errorf("%w: proposal id is required", models.ErrInvalidInput)
	}
	if req == nil {
		req = &models.ReviewRequest{}
	}

	p, err := s.proposals.GetByID(proposalID)
	if err != nil {
		return nil, fmt.Errorf("%w: load proposal: %v", models.ErrStorageUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: proposal %s", models.ErrNotFound, proposalID)
	}
	if p.Status != models.ProposalPending {
		return nil, fmt.Errorf("%w: proposal %s is %s", models.ErrStateConflict, proposalID, p.Status)
	}

	sources, err := s.loadSources(p.SourceIDs)
	if err != nil {
		return nil, err
	}

	// The world may have moved since detection; the gate decides on what the
	// items look like now, not what they looked like then.
	gate := safety.CheckMerge(sources, p.SimilarityScore)
	if !gate.Allowed {
		return nil, fmt.Errorf("%w: %s", models.ErrStateConflict, strings.Join(gate.Blockers, "; "))
	}

	out, err := Merge(sources)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	canonical := buildCanonical(p, sources, out, now)

	if s.embedder != nil {
		if vec, err := s.embedder.Embed(out.Content); err != nil {
			s.logger.Debug("canonical embedding unavailable", "proposal", p.ID, "error", err)
		} else {
			canonical.Embedding = vectors.Encode(vec)
		}
	}

	history := &models.MergeHistory{
		ID:          uuid.New().String(),
		ProposalID:  p.ID,
		SourceIDs:   p.SourceIDs,
		CanonicalID: canonical.ID,
		Snapshots:   snapshotSources(sources),
		Strategy:    out.Strategy,
		TokensSaved: TokensSaved(sources, out.Content),
		CreatedAt:   now,
	}

	err = s.db.ApplyMerge(store.ApplyMergeParams{
		ProposalID:  p.ID,
		ReviewedAt:  now,
		ReviewNotes: req.ReviewNotes,
		Canonical:   canonical,
		SourceIDs:   p.SourceIDs,
		History:     history,
		Cache:       dedup.NewCacheEntry(canonical),
	})
	switch {
	case errors.Is(err, store.ErrNotPending):
		return nil, fmt.Errorf("%w: proposal %s is no longer pending", models.ErrStateConflict, p.ID)
	case errors.Is(err, store.ErrItemChanged):
		return nil, fmt.Errorf("%w: %v", models.ErrStateConflict, err)
	case err != nil:
		return nil, fmt.Errorf("%w: apply merge: %v", models.ErrStorageUnavailable, err)
	}

	s.logger.Info("merge applied",
		"proposal", p.ID,
		"canonical", canonical.ID,
		"sources", len(sources),
		"strategy", out.Strategy,
		"tokens_saved", history.TokensSaved,
	)
	return &models.ApproveResponse{
		ProposalID:  p.ID,
		CanonicalID: canonical.ID,
		HistoryID:   history.ID,
		TokensSaved: history.TokensSaved,
	}, nil
}

// Reject closes a pending proposal without merging. The sources are left
// untouched and the pair can be proposed again by a later detection run.
func (s *Service) Reject(proposalID string, req *models.ReviewRequest) (*models.MergeProposal, error) {
	if proposalID == "" {
		return nil, fmt.Errorf("%w: proposal id is required", models.ErrInvalidInput)
	}
	if req == nil {
		req = &models.ReviewRequest{}
	}

	p, err := s.proposals.GetByID(proposalID)
	if err != nil {
		return nil, fmt.Errorf("%w: load proposal: %v", models.ErrStorageUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: proposal %s", models.ErrNotFound, proposalID)
	}
	if p.Status != models.ProposalPending {
		return nil, fmt.Errorf("%w: proposal %s is %s", models.ErrStateConflict, proposalID, p.Status)
	}

	now := time.Now().Unix()
	err = s.proposals.SetStatus(proposalID, models.ProposalPending, models.ProposalRejected, now, req.ReviewNotes)
	if errors.Is(err, store.ErrNotPending) {
		return nil, fmt.Errorf("%w: proposal %s is no longer pending", models.ErrStateConflict, proposalID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reject proposal: %v", models.ErrStorageUnavailable, err)
	}

	p.Status = models.ProposalRejected
	p.ReviewedAt = &now
	p.ReviewNotes = req.ReviewNotes
	s.logger.Info("proposal rejected", "proposal", proposalID)
	return p, nil
}

// Reverse undoes an applied merge: sources come back from their snapshots
// and the canonical item is deactivated. A canonical that was itself merged
// into a newer canonical blocks reversal until that merge is reversed.
func (s *Service) Reverse(historyID string, req *models.ReverseRequest) (*models.ReverseResponse, error) {
	if historyID == "" {
		return nil, fmt.Errorf("%w: history id is required", models.ErrInvalidInput)
	}
	if req == nil {
		req = &models.ReverseRequest{}
	}

	h, err := s.history.GetByID(historyID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %v", models.ErrStorageUnavailable, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: merge history %s", models.ErrNotFound, historyID)
	}
	if h.IsReversed {
		return nil, fmt.Errorf("%w: merge %s was already reversed", models.ErrStateConflict, historyID)
	}

	canonical, err := s.items.GetByID(h.CanonicalID)
	if err != nil {
		return nil, fmt.Errorf("%w: load canonical: %v", models.ErrStorageUnavailable, err)
	}
	if canonical == nil {
		return nil, fmt.Errorf("%w: canonical item %s", models.ErrNotFound, h.CanonicalID)
	}
	if canonical.IsMerged {
		return nil, fmt.Errorf("%w: canonical %s was merged again, reverse the newer merge first",
			models.ErrStateConflict, h.CanonicalID)
	}

	err = s.db.ReverseMerge(store.ReverseMergeParams{
		HistoryID:   historyID,
		CanonicalID: h.CanonicalID,
		Snapshots:   h.Snapshots,
		ReversedAt:  time.Now().Unix(),
		ReversedBy:  req.ReversedBy,
		ReverseNote: req.Reason,
	})
	switch {
	case errors.Is(err, store.ErrAlreadyReversed):
		return nil, fmt.Errorf("%w: merge %s was already reversed", models.ErrStateConflict, historyID)
	case errors.Is(err, store.ErrItemChanged):
		return nil, fmt.Errorf("%w: %v", models.ErrStateConflict, err)
	case err != nil:
		return nil, fmt.Errorf("%w: reverse merge: %v", models.ErrStorageUnavailable, err)
	}

	s.logger.Info("merge reversed",
		"history", historyID,
		"canonical", h.CanonicalID,
		"restored", len(h.SourceIDs),
	)
	return &models.ReverseResponse{
		HistoryID:   historyID,
		CanonicalID: h.CanonicalID,
		RestoredIDs: h.SourceIDs,
	}, nil
}

// loadSources fetches a proposal's sources in proposal order. Every source
// must still exist; merged or inactive sources load fine and fail later at
// the safety gate with a better message.
func (s *Service) loadSources(ids []string) ([]*models.MemoryItem, error) {
	items, err := s.items.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load sources: %v", models.ErrStorageUnavailable, err)
	}
	byID := make(map[string]*models.MemoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	ordered := make([]*models.MemoryItem, 0, len(ids))
	for _, id := range ids {
		item := byID[id]
		if item == nil {
			return nil, fmt.Errorf("%w: source item %s", models.ErrNotFound, id)
		}
		ordered = append(ordered, item)
	}
	return ordered, nil
}

// buildCanonical materializes the merged item. Confidence is discounted from
// the source mean: a machine-merged item is never more trustworthy than what
// went into it.
func buildCanonical(p *models.MergeProposal, sources []*models.MemoryItem, out *Output, now int64) *models.MemoryItem {
	var confSum, relSum float64
	maxVersion := 0
	userID := sources[0].UserID
	private, secrets := false, false
	for _, src := range sources {
		confSum += src.Confidence
		relSum += src.Relevance
		if src.MergeVersion > maxVersion {
			maxVersion = src.MergeVersion
		}
		if src.UserID != userID {
			// Cross-user merge has no single owner.
			userID = ""
		}
		private = private || src.IsPrivate
		secrets = secrets || src.HasSecrets
	}
	n := float64(len(sources))

	return &models.MemoryItem{
		ID:             uuid.New().String(),
		ProjectID:      p.ProjectID,
		UserID:         userID,
		MemoryType:     sources[0].MemoryType,
		Content:        out.Content,
		Summary:        out.Summary,
		Tags:           out.Tags,
		Metadata:       out.Metadata,
		IsActive:       true,
		IsMergeable:    true,
		IsCanonical:    true,
		MergeSourceIDs: p.SourceIDs,
		MergeVersion:   maxVersion + 1,
		IsPrivate:      private,
		HasSecrets:     secrets,
		Confidence:     0.9 * confSum / n,
		Relevance:      relSum / n,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// snapshotSources captures the exact pre-merge state reversal will restore.
func snapshotSources(sources []*models.MemoryItem) []models.SourceSnapshot {
	snaps := make([]models.SourceSnapshot, 0, len(sources))
	for _, src := range sources {
		snaps = append(snaps, models.SourceSnapshot{
			ID:         src.ID,
			Content:    src.Content,
			Summary:    src.Summary,
			Tags:       src.Tags,
			Metadata:   src.Metadata,
			Confidence: src.Confidence,
			Relevance:  src.Relevance,
			CreatedAt:  src.CreatedAt,
		})
	}
	return snaps
}
