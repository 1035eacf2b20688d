package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memfold/memfold/internal/models"
)

// itemColumns is the canonical column list for all SELECT queries.
// Order must match scanOne/scanMany.
const itemColumns = `id, project_id, user_id, memory_type, content, summary,
	tags, metadata, embedding,
	is_active, is_mergeable, is_merged, is_canonical,
	merged_into_id, merge_source_ids, merge_version,
	is_private, has_secrets,
	confidence, relevance,
	created_at, updated_at`

// ItemStore handles memory item CRUD operations on SQLite.
type ItemStore struct {
	db *DB
}

func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

// Insert stores a new memory item. The caller must set all required fields
// including ID and timestamps.
func (s *ItemStore) Insert(m *models.MemoryItem) error {
	return insertItem(s.db, m)
}

// insertItem writes one item row; it runs on the DB or inside an open
// transaction (merge approval inserts the canonical item transactionally).
func insertItem(e execer, m *models.MemoryItem) error {
	tagsJSON, _ := json.Marshal(m.Tags)

	var metadataJSON []byte
	if m.Metadata != nil {
		metadataJSON, _ = json.Marshal(m.Metadata)
	}
	var sourceIDsJSON []byte
	if len(m.MergeSourceIDs) > 0 {
		sourceIDsJSON, _ = json.Marshal(m.MergeSourceIDs)
	}

	_, err := e.Exec(`
		INSERT INTO memory_items (
			id, project_id, user_id, memory_type, content, summary,
			tags, metadata, embedding,
			is_active, is_mergeable, is_merged, is_canonical,
			merged_into_id, merge_source_ids, merge_version,
			is_private, has_secrets,
			confidence, relevance,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.ProjectID, nullableStr(m.UserID), string(m.MemoryType), m.Content, nullableStr(m.Summary),
		string(tagsJSON), nullableString(metadataJSON), m.Embedding,
		m.IsActive, m.IsMergeable, m.IsMerged, m.IsCanonical,
		m.MergedIntoID, nullableString(sourceIDsJSON), m.MergeVersion,
		m.IsPrivate, m.HasSecrets,
		m.Confidence, m.Relevance,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetByID fetches a single item by ID. Returns (nil, nil) when not found.
func (s *ItemStore) GetByID(id string) (*models.MemoryItem, error) {
	m, err := s.scanOne(s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM memory_items WHERE id = ?`, itemColumns), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetByIDs fetches multiple items by their IDs in a single query.
func (s *ItemStore) GetByIDs(ids []string) ([]*models.MemoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM memory_items WHERE id IN (%s)`,
		itemColumns, strings.Join(placeholders, ","))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get by ids: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// Update applies partial updates to an item and returns the fresh row.
func (s *ItemStore) Update(id string, req *models.UpdateRequest) (*models.MemoryItem, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().Unix()}

	if req.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *req.Content)
	}
	if req.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *req.Summary)
	}
	if req.Tags != nil {
		tagsJSON, _ := json.Marshal(*req.Tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(tagsJSON))
	}
	if req.Metadata != nil {
		metadataJSON, _ := json.Marshal(*req.Metadata)
		sets = append(sets, "metadata = ?")
		args = append(args, string(metadataJSON))
	}
	if req.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *req.Confidence)
	}
	if req.Relevance != nil {
		sets = append(sets, "relevance = ?")
		args = append(args, *req.Relevance)
	}
	if req.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *req.IsActive)
	}
	if req.IsMergeable != nil {
		sets = append(sets, "is_mergeable = ?")
		args = append(args, *req.IsMergeable)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE memory_items SET %s WHERE id = ?`, strings.Join(sets, ", "))
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("item not found: %s", id)
	}

	return s.GetByID(id)
}

// UpdateEmbedding stores a freshly computed embedding for an item.
func (s *ItemStore) UpdateEmbedding(id string, embedding []byte) error {
	_, err := s.db.Exec(`
		UPDATE memory_items SET embedding = ?, updated_at = ?
		WHERE id = ?
	`, embedding, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

// SetSensitivity updates the privacy and secret flags re-derived from an
// item's current content.
func (s *ItemStore) SetSensitivity(id string, isPrivate, hasSecrets bool) error {
	_, err := s.db.Exec(`
		UPDATE memory_items SET is_private = ?, has_secrets = ?, updated_at = ?
		WHERE id = ?
	`, isPrivate, hasSecrets, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set sensitivity: %w", err)
	}
	return nil
}

// Deactivate soft-deletes an item. The row survives for merge history and
// possible reactivation.
func (s *ItemStore) Deactivate(id string) error {
	res, err := s.db.Exec(`
		UPDATE memory_items SET is_active = 0, updated_at = ?
		WHERE id = ?
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("deactivate item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item not found: %s", id)
	}
	return nil
}

// Delete permanently removes an item. Its hash cache row cascades.
func (s *ItemStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item not found: %s", id)
	}
	return nil
}

// List returns a paginated, filtered list of items, newest first.
func (s *ItemStore) List(req *models.ListRequest) ([]*models.MemoryItem, int, error) {
	conditions := []string{"project_id = ?"}
	args := []any{req.ProjectID}

	if req.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, string(req.MemoryType))
	}
	if req.ActiveOnly {
		conditions = append(conditions, "is_active = 1")
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM memory_items %s`, whereClause)
	var total int
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM memory_items %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, itemColumns, whereClause)

	queryArgs := append(args, limit, offset)
	rows, err := s.db.Query(selectQuery, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items, err := s.scanMany(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AllActive returns every active item in a project, oldest first. The cache
// rebuild walks this set.
func (s *ItemStore) AllActive(projectID string) ([]*models.MemoryItem, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s
		FROM memory_items
		WHERE project_id = ? AND is_active = 1
		ORDER BY created_at ASC, id ASC
	`, itemColumns), projectID)
	if err != nil {
		return nil, fmt.Errorf("active items: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// ActiveMergeable returns the detection scan set for a project: active,
// mergeable, not-yet-merged items, oldest first. An empty memoryType means
// all types.
func (s *ItemStore) ActiveMergeable(projectID string, memoryType models.MemoryType) ([]*models.MemoryItem, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM memory_items
		WHERE project_id = ? AND is_active = 1 AND is_mergeable = 1 AND is_merged = 0
	`, itemColumns)
	args := []any{projectID}

	if memoryType != "" {
		query += ` AND memory_type = ?`
		args = append(args, string(memoryType))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan set: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// CountByProject returns active/merged/canonical counts plus a per-type
// breakdown of active items. Used by the stats endpoint.
func (s *ItemStore) CountByProject(projectID string) (active, merged, canonical int, byType map[string]int, err error) {
	byType = make(map[string]int)

	err = s.db.QueryRow(`SELECT COUNT(*) FROM memory_items WHERE project_id = ? AND is_active = 1`, projectID).Scan(&active)
	if err != nil {
		return
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM memory_items WHERE project_id = ? AND is_merged = 1`, projectID).Scan(&merged)
	if err != nil {
		return
	}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM memory_items WHERE project_id = ? AND is_canonical = 1 AND is_active = 1`, projectID).Scan(&canonical)
	if err != nil {
		return
	}

	rows, err := s.db.Query(`SELECT memory_type, COUNT(*) FROM memory_items WHERE project_id = ? AND is_active = 1 GROUP BY memory_type`, projectID)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var mt string
		var c int
		if err = rows.Scan(&mt, &c); err != nil {
			return
		}
		byType[mt] = c
	}
	err = rows.Err()
	return
}

func (s *ItemStore) scanOne(row *sql.Row) (*models.MemoryItem, error) {
	var m models.MemoryItem
	var userID, summary sql.NullString
	var tagsJSON, metadataJSON sql.NullString
	var mergedIntoID, sourceIDsJSON sql.NullString

	err := row.Scan(
		&m.ID, &m.ProjectID, &userID, &m.MemoryType, &m.Content, &summary,
		&tagsJSON, &metadataJSON, &m.Embedding,
		&m.IsActive, &m.IsMergeable, &m.IsMerged, &m.IsCanonical,
		&mergedIntoID, &sourceIDsJSON, &m.MergeVersion,
		&m.IsPrivate, &m.HasSecrets,
		&m.Confidence, &m.Relevance,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	populateItemNullables(&m, userID, summary, tagsJSON, metadataJSON, mergedIntoID, sourceIDsJSON)
	return &m, nil
}

func (s *ItemStore) scanMany(rows *sql.Rows) ([]*models.MemoryItem, error) {
	var result []*models.MemoryItem
	for rows.Next() {
		var m models.MemoryItem
		var userID, summary sql.NullString
		var tagsJSON, metadataJSON sql.NullString
		var mergedIntoID, sourceIDsJSON sql.NullString

		if err := rows.Scan(
			&m.ID, &m.ProjectID, &userID, &m.MemoryType, &m.Content, &summary,
			&tagsJSON, &metadataJSON, &m.Embedding,
			&m.IsActive, &m.IsMergeable, &m.IsMerged, &m.IsCanonical,
			&mergedIntoID, &sourceIDsJSON, &m.MergeVersion,
			&m.IsPrivate, &m.HasSecrets,
			&m.Confidence, &m.Relevance,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		populateItemNullables(&m, userID, summary, tagsJSON, metadataJSON, mergedIntoID, sourceIDsJSON)
		result = append(result, &m)
	}
	return result, rows.Err()
}

// populateItemNullables fills in optional fields from nullable SQL columns.
func populateItemNullables(
	m *models.MemoryItem,
	userID, summary, tagsJSON, metadataJSON, mergedIntoID, sourceIDsJSON sql.NullString,
) {
	if userID.Valid {
		m.UserID = userID.String
	}
	if summary.Valid {
		m.Summary = summary.String
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &m.Tags)
	}
	if metadataJSON.Valid {
		json.Unmarshal([]byte(metadataJSON.String), &m.Metadata)
	}
	if mergedIntoID.Valid {
		m.MergedIntoID = &mergedIntoID.String
	}
	if sourceIDsJSON.Valid {
		json.Unmarshal([]byte(sourceIDsJSON.String), &m.MergeSourceIDs)
	}
}

// execer lets writes run on either the DB or an open transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// nullableString converts a byte slice to a *string for nullable TEXT columns.
func nullableString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// nullableStr converts an empty string to NULL for nullable TEXT columns.
func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
