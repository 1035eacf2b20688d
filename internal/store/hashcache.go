package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/memfold/memfold/internal/fingerprint"
	"github.com/memfold/memfold/internal/models"
)

// HashCacheStore persists precomputed fingerprints, one row per memory item.
// SimHash is stored as a 16-char hex string, MinHash as a packed BLOB.
type HashCacheStore struct {
	db *DB
}

func NewHashCacheStore(db *DB) *HashCacheStore {
	return &HashCacheStore{db: db}
}

// Upsert writes or replaces the fingerprint row for an item.
func (s *HashCacheStore) Upsert(e *models.HashCacheEntry) error {
	return upsertHashCache(s.db, e)
}

// upsertHashCache runs on the DB or inside an open transaction (merge
// approval caches the canonical item's fingerprints transactionally).
func upsertHashCache(ex execer, e *models.HashCacheEntry) error {
	sig := fingerprint.Signature(e.MinHash)
	_, err := ex.Exec(`
		INSERT INTO hash_cache (memory_id, simhash, minhash, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			simhash = excluded.simhash,
			minhash = excluded.minhash,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`, e.MemoryID, fmt.Sprintf("%016x", e.SimHash), fingerprint.SignatureToBytes(&sig),
		e.ContentHash, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert hash cache: %w", err)
	}
	return nil
}

// Get fetches the fingerprint row for one item. Returns (nil, nil) when the
// item has no cache entry yet.
func (s *HashCacheStore) Get(memoryID string) (*models.HashCacheEntry, error) {
	row := s.db.QueryRow(`
		SELECT memory_id, simhash, minhash, content_hash, updated_at
		FROM hash_cache WHERE memory_id = ?
	`, memoryID)

	e, err := scanCacheEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ForProject returns all fingerprint rows for a project's items, keyed by
// memory ID. Detection pulls this once per run instead of per item.
func (s *HashCacheStore) ForProject(projectID string) (map[string]*models.HashCacheEntry, error) {
	rows, err := s.db.Query(`
		SELECT h.memory_id, h.simhash, h.minhash, h.content_hash, h.updated_at
		FROM hash_cache h
		JOIN memory_items m ON m.id = h.memory_id
		WHERE m.project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("cache for project: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*models.HashCacheEntry)
	for rows.Next() {
		e, err := scanCacheEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		result[e.MemoryID] = e
	}
	return result, rows.Err()
}

// FindActiveByContentHash returns the ID of the oldest active item in a
// project with the given type and exact content hash, or "" when none
// exists. This is the ingest idempotency guard; items whose cache row never
// landed are invisible to it and get caught by detection instead.
func (s *HashCacheStore) FindActiveByContentHash(projectID string, memoryType models.MemoryType, contentHash string) (string, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT m.id
		FROM hash_cache h
		JOIN memory_items m ON m.id = h.memory_id
		WHERE m.project_id = ? AND m.memory_type = ? AND m.is_active = 1 AND h.content_hash = ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT 1
	`, projectID, string(memoryType), contentHash).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find by content hash: %w", err)
	}
	return id, nil
}

// Delete removes the fingerprint row for one item.
func (s *HashCacheStore) Delete(memoryID string) error {
	if _, err := s.db.Exec(`DELETE FROM hash_cache WHERE memory_id = ?`, memoryID); err != nil {
		return fmt.Errorf("delete hash cache: %w", err)
	}
	return nil
}

// DeleteOrphans removes cache rows whose item no longer exists. The foreign
// key cascade covers normal deletes; this sweeps rows left by databases
// written before the cascade existed.
func (s *HashCacheStore) DeleteOrphans() (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM hash_cache
		WHERE memory_id NOT IN (SELECT id FROM memory_items)
	`)
	if err != nil {
		return 0, fmt.Errorf("delete orphans: %w", err)
	}
	return res.RowsAffected()
}

// CountForProject returns how many of a project's items have cache rows.
func (s *HashCacheStore) CountForProject(projectID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM hash_cache h
		JOIN memory_items m ON m.id = h.memory_id
		WHERE m.project_id = ?
	`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

// MissingForProject returns how many active items have no cache row.
func (s *HashCacheStore) MissingForProject(projectID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM memory_items m
		LEFT JOIN hash_cache h ON h.memory_id = m.id
		WHERE m.project_id = ? AND m.is_active = 1 AND h.memory_id IS NULL
	`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count missing cache entries: %w", err)
	}
	return count, nil
}

// scanCacheEntry decodes one hash_cache row from any scan function.
func scanCacheEntry(scan func(dest ...any) error) (*models.HashCacheEntry, error) {
	var e models.HashCacheEntry
	var simhashHex string
	var minhashBlob []byte

	if err := scan(&e.MemoryID, &simhashHex, &minhashBlob, &e.ContentHash, &e.UpdatedAt); err != nil {
		return nil, err
	}

	simhash, err := strconv.ParseUint(simhashHex, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("decode simhash %q: %w", simhashHex, err)
	}
	e.SimHash = simhash

	sig, err := fingerprint.BytesToSignature(minhashBlob)
	if err != nil {
		return nil, fmt.Errorf("decode minhash for %s: %w", e.MemoryID, err)
	}
	e.MinHash = sig

	return &e, nil
}
