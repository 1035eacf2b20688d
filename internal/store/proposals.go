package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memfold/memfold/internal/models"
)

// proposalColumns is the canonical column list for all SELECT queries.
// Order must match scanProposal.
const proposalColumns = `id, project_id, source_ids,
	proposed_content, proposed_summary, proposed_tags, proposed_metadata,
	detection_method, similarity_score, confidence,
	merge_reason, conflict_warnings,
	status, reviewed_at, review_notes,
	created_at, expires_at`

// ProposalStore handles merge proposal rows.
type ProposalStore struct {
	db *DB
}

func NewProposalStore(db *DB) *ProposalStore {
	return &ProposalStore{db: db}
}

// Insert stores a new proposal. The caller must set ID, status, and timestamps.
func (s *ProposalStore) Insert(p *models.MergeProposal) error {
	sourceIDsJSON, _ := json.Marshal(p.SourceIDs)
	tagsJSON, _ := json.Marshal(p.ProposedTags)

	var metadataJSON []byte
	if p.ProposedMetadata != nil {
		metadataJSON, _ = json.Marshal(p.ProposedMetadata)
	}
	var warningsJSON []byte
	if len(p.ConflictWarnings) > 0 {
		warningsJSON, _ = json.Marshal(p.ConflictWarnings)
	}

	_, err := s.db.Exec(`
		INSERT INTO merge_proposals (
			id, project_id, source_ids,
			proposed_content, proposed_summary, proposed_tags, proposed_metadata,
			detection_method, similarity_score, confidence,
			merge_reason, conflict_warnings,
			status, reviewed_at, review_notes,
			created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.ProjectID, string(sourceIDsJSON),
		p.ProposedContent, nullableStr(p.ProposedSummary), string(tagsJSON), nullableString(metadataJSON),
		string(p.DetectionMethod), p.SimilarityScore, string(p.Confidence),
		nullableStr(p.MergeReason), nullableString(warningsJSON),
		string(p.Status), p.ReviewedAt, nullableStr(p.ReviewNotes),
		p.CreatedAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

// GetByID fetches a single proposal. Returns (nil, nil) when not found.
func (s *ProposalStore) GetByID(id string) (*models.MergeProposal, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM merge_proposals WHERE id = ?`, proposalColumns), id)
	p, err := scanProposal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// List returns a paginated list of a project's proposals, newest first.
// An empty status means all statuses.
func (s *ProposalStore) List(projectID string, status models.ProposalStatus, limit, offset int) ([]*models.MergeProposal, int, error) {
	conditions := []string{"project_id = ?"}
	args := []any{projectID}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(status))
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM merge_proposals %s`, whereClause)
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM merge_proposals %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, proposalColumns, whereClause)
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals, err := scanProposals(rows)
	if err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

// AllPending returns every pending proposal for a project. Detection uses
// this to avoid proposing a pair that is already under review.
func (s *ProposalStore) AllPending(projectID string) ([]*models.MergeProposal, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM merge_proposals WHERE project_id = ? AND status = 'pending'`, proposalColumns),
		projectID)
	if err != nil {
		return nil, fmt.Errorf("pending proposals: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

// SetStatus transitions a proposal from one status to another. The update is
// guarded on the current status; ErrNotPending is returned when the proposal
// was reviewed or expired concurrently.
func (s *ProposalStore) SetStatus(id string, from, to models.ProposalStatus, reviewedAt int64, notes string) error {
	res, err := s.db.Exec(`
		UPDATE merge_proposals SET status = ?, reviewed_at = ?, review_notes = ?
		WHERE id = ? AND status = ?
	`, string(to), reviewedAt, nullableStr(notes), id, string(from))
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// ExpireStale marks pending proposals past their expiry as expired and
// returns how many were flipped.
func (s *ProposalStore) ExpireStale(now int64) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE merge_proposals SET status = 'expired', reviewed_at = ?
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < ?
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("expire proposals: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns per-status proposal counts for a project.
func (s *ProposalStore) CountByStatus(projectID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM merge_proposals
		WHERE project_id = ? GROUP BY status
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("count proposals by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var st string
		var c int
		if err := rows.Scan(&st, &c); err != nil {
			return nil, fmt.Errorf("scan proposal count: %w", err)
		}
		counts[st] = c
	}
	return counts, rows.Err()
}

// scanProposal decodes one merge_proposals row from any scan function.
func scanProposal(scan func(dest ...any) error) (*models.MergeProposal, error) {
	var p models.MergeProposal
	var sourceIDsJSON, tagsJSON string
	var summary, metadataJSON, reason, warningsJSON, notes sql.NullString
	var reviewedAt, expiresAt sql.NullInt64

	if err := scan(
		&p.ID, &p.ProjectID, &sourceIDsJSON,
		&p.ProposedContent, &summary, &tagsJSON, &metadataJSON,
		&p.DetectionMethod, &p.SimilarityScore, &p.Confidence,
		&reason, &warningsJSON,
		&p.Status, &reviewedAt, &notes,
		&p.CreatedAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(sourceIDsJSON), &p.SourceIDs)
	json.Unmarshal([]byte(tagsJSON), &p.ProposedTags)
	if summary.Valid {
		p.ProposedSummary = summary.String
	}
	if metadataJSON.Valid {
		json.Unmarshal([]byte(metadataJSON.String), &p.ProposedMetadata)
	}
	if reason.Valid {
		p.MergeReason = reason.String
	}
	if warningsJSON.Valid {
		json.Unmarshal([]byte(warningsJSON.String), &p.ConflictWarnings)
	}
	if reviewedAt.Valid {
		p.ReviewedAt = &reviewedAt.Int64
	}
	if notes.Valid {
		p.ReviewNotes = notes.String
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Int64
	}

	return &p, nil
}

func scanProposals(rows *sql.Rows) ([]*models.MergeProposal, error) {
	var result []*models.MergeProposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
