package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/memfold/memfold/internal/models"
)

// historyColumns is the canonical column list for all SELECT queries.
// Order must match scanHistory.
const historyColumns = `id, proposal_id, source_ids, canonical_id, snapshots,
	strategy, tokens_saved, is_reversed, reversed_at, reversed_by, reverse_note, created_at`

// HistoryStore handles merge history rows. A history row is the audit record
// of one applied merge and carries the snapshots needed to reverse it.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Insert stores a new history row.
func (s *HistoryStore) Insert(h *models.MergeHistory) error {
	return insertHistory(s.db, h)
}

// insertHistory runs on the DB or inside an open transaction (merge approval
// writes the history row transactionally).
func insertHistory(e execer, h *models.MergeHistory) error {
	sourceIDsJSON, _ := json.Marshal(h.SourceIDs)
	snapshotsJSON, _ := json.Marshal(h.Snapshots)

	_, err := e.Exec(`
		INSERT INTO merge_history (
			id, proposal_id, source_ids, canonical_id, snapshots,
			strategy, tokens_saved, is_reversed, reversed_at, reversed_by, reverse_note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, nullableStr(h.ProposalID), string(sourceIDsJSON), h.CanonicalID, string(snapshotsJSON),
		h.Strategy, h.TokensSaved, h.IsReversed, h.ReversedAt, nullableStr(h.ReversedBy),
		nullableStr(h.ReverseNote), h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// GetByID fetches a single history row. Returns (nil, nil) when not found.
func (s *HistoryStore) GetByID(id string) (*models.MergeHistory, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM merge_history WHERE id = ?`, historyColumns), id)
	h, err := scanHistory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

// GetByProposal fetches the history row created from a proposal.
// Returns (nil, nil) when the proposal was never approved.
func (s *HistoryStore) GetByProposal(proposalID string) (*models.MergeHistory, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM merge_history WHERE proposal_id = ?`, historyColumns), proposalID)
	h, err := scanHistory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

// ActiveByCanonical fetches the non-reversed history row whose merge produced
// the given canonical item. Returns (nil, nil) when none exists.
func (s *HistoryStore) ActiveByCanonical(canonicalID string) (*models.MergeHistory, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM merge_history WHERE canonical_id = ? AND is_reversed = 0`, historyColumns),
		canonicalID)
	h, err := scanHistory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

// ListForProject returns a project's merge history, newest first. History is
// scoped to a project through its originating proposal.
func (s *HistoryStore) ListForProject(projectID string, limit int) ([]*models.MergeHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT h.id, h.proposal_id, h.source_ids, h.canonical_id, h.snapshots,
			h.strategy, h.tokens_saved, h.is_reversed, h.reversed_at, h.reversed_by, h.reverse_note, h.created_at
		FROM merge_history h
		JOIN merge_proposals p ON p.id = h.proposal_id
		WHERE p.project_id = ?
		ORDER BY h.created_at DESC, h.id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var result []*models.MergeHistory
	for rows.Next() {
		h, err := scanHistory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// CountForProject returns merge totals for the stats endpoint: how many
// merges ran, how many were reversed, and tokens saved by merges still in
// effect.
func (s *HistoryStore) CountForProject(projectID string) (total, reversed, tokensSaved int, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(h.is_reversed), 0),
			COALESCE(SUM(CASE WHEN h.is_reversed = 0 THEN h.tokens_saved ELSE 0 END), 0)
		FROM merge_history h
		JOIN merge_proposals p ON p.id = h.proposal_id
		WHERE p.project_id = ?
	`, projectID).Scan(&total, &reversed, &tokensSaved)
	if err != nil {
		err = fmt.Errorf("count history: %w", err)
	}
	return
}

// scanHistory decodes one merge_history row from any scan function.
func scanHistory(scan func(dest ...any) error) (*models.MergeHistory, error) {
	var h models.MergeHistory
	var proposalID sql.NullString
	var sourceIDsJSON, snapshotsJSON string
	var reversedAt sql.NullInt64
	var reversedBy, reverseNote sql.NullString

	if err := scan(
		&h.ID, &proposalID, &sourceIDsJSON, &h.CanonicalID, &snapshotsJSON,
		&h.Strategy, &h.TokensSaved, &h.IsReversed, &reversedAt, &reversedBy, &reverseNote, &h.CreatedAt,
	); err != nil {
		return nil, err
	}

	if proposalID.Valid {
		h.ProposalID = proposalID.String
	}
	json.Unmarshal([]byte(sourceIDsJSON), &h.SourceIDs)
	if err := json.Unmarshal([]byte(snapshotsJSON), &h.Snapshots); err != nil {
		return nil, fmt.Errorf("decode snapshots for %s: %w", h.ID, err)
	}
	if reversedAt.Valid {
		h.ReversedAt = &reversedAt.Int64
	}
	if reversedBy.Valid {
		h.ReversedBy = reversedBy.String
	}
	if reverseNote.Valid {
		h.ReverseNote = reverseNote.String
	}

	return &h, nil
}
