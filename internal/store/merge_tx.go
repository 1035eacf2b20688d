package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/memfold/memfold/internal/models"
)

var (
	// ErrNotPending means a proposal status transition lost a race: the
	// proposal was approved, rejected, or expired by someone else first.
	ErrNotPending = errors.New("proposal is not pending")

	// ErrAlreadyReversed means the merge history row was reversed already.
	ErrAlreadyReversed = errors.New("merge already reversed")

	// ErrItemChanged means a memory item left the state a merge operation
	// required between validation and commit.
	ErrItemChanged = errors.New("item state changed")
)

// ApplyMergeParams carries everything one merge approval writes.
type ApplyMergeParams struct {
	ProposalID  string
	ReviewedAt  int64
	ReviewNotes string
	Canonical   *models.MemoryItem
	SourceIDs   []string
	History     *models.MergeHistory
	Cache       *models.HashCacheEntry
}

// ApplyMerge executes an approved merge in one transaction: the proposal
// flips to approved, the canonical item is inserted, every source is
// archived and pointed at the canonical, the history row is written, and the
// canonical's fingerprints enter the hash cache. Any failure rolls the whole
// thing back, so a merge is either fully applied or not at all.
//
// Status and source-state guards run inside the transaction, so a concurrent
// approval of the same proposal (or of an overlapping one) loses cleanly
// with ErrNotPending or ErrItemChanged instead of corrupting items.
func (db *DB) ApplyMerge(p ApplyMergeParams) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE merge_proposals SET status = ?, reviewed_at = ?, review_notes = ?
		WHERE id = ? AND status = ?
	`, string(models.ProposalApproved), p.ReviewedAt, nullableStr(p.ReviewNotes),
		p.ProposalID, string(models.ProposalPending))
	if err != nil {
		return fmt.Errorf("approve proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotPending
	}

	if err := insertItem(tx, p.Canonical); err != nil {
		return fmt.Errorf("insert canonical: %w", err)
	}

	// Each source must still be an active, unmerged item. Zero rows means it
	// was merged, deactivated, or deleted since the proposal was validated.
	for _, id := range p.SourceIDs {
		res, err := tx.Exec(`
			UPDATE memory_items
			SET is_merged = 1, is_active = 0, merged_into_id = ?, updated_at = ?
			WHERE id = ? AND is_active = 1 AND is_merged = 0
		`, p.Canonical.ID, p.ReviewedAt, id)
		if err != nil {
			return fmt.Errorf("archive source %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: source %s", ErrItemChanged, id)
		}
	}

	if err := insertHistory(tx, p.History); err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	if p.Cache != nil {
		if err := upsertHashCache(tx, p.Cache); err != nil {
			return fmt.Errorf("cache canonical fingerprints: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// ReverseMergeParams carries everything one merge reversal writes.
type ReverseMergeParams struct {
	HistoryID   string
	CanonicalID string
	Snapshots   []models.SourceSnapshot
	ReversedAt  int64
	ReversedBy  string
	ReverseNote string
}

// ReverseMerge undoes an applied merge in one transaction: the history row
// flips to reversed, the canonical item is deactivated, and every source is
// restored to its snapshotted content with its merge flags cleared. Restored
// rows come back byte-identical to their pre-merge state.
func (db *DB) ReverseMerge(p ReverseMergeParams) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin reverse tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE merge_history SET is_reversed = 1, reversed_at = ?, reversed_by = ?, reverse_note = ?
		WHERE id = ? AND is_reversed = 0
	`, p.ReversedAt, nullableStr(p.ReversedBy), nullableStr(p.ReverseNote), p.HistoryID)
	if err != nil {
		return fmt.Errorf("mark history reversed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyReversed
	}

	// The canonical must not have been merged into a newer canonical in the
	// meantime; that merge has to be reversed first.
	res, err = tx.Exec(`
		UPDATE memory_items SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_merged = 0
	`, p.ReversedAt, p.CanonicalID)
	if err != nil {
		return fmt.Errorf("deactivate canonical: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: canonical %s", ErrItemChanged, p.CanonicalID)
	}

	for _, snap := range p.Snapshots {
		tagsJSON, _ := json.Marshal(snap.Tags)
		var metadataJSON []byte
		if snap.Metadata != nil {
			metadataJSON, _ = json.Marshal(snap.Metadata)
		}

		res, err := tx.Exec(`
			UPDATE memory_items
			SET content = ?, summary = ?, tags = ?, metadata = ?,
				confidence = ?, relevance = ?,
				is_active = 1, is_merged = 0, merged_into_id = NULL,
				updated_at = ?
			WHERE id = ?
		`, snap.Content, nullableStr(snap.Summary), string(tagsJSON), nullableString(metadataJSON),
			snap.Confidence, snap.Relevance,
			p.ReversedAt, snap.ID)
		if err != nil {
			return fmt.Errorf("restore source %s: %w", snap.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("restore source %s: item no longer exists", snap.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reversal: %w", err)
	}
	return nil
}
