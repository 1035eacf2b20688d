// Package store provides SQLite persistence for projects, memory items,
// fingerprint caches, merge proposals, and merge history.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{db}, nil
}

// runMigrations applies incremental schema changes that were added after the
// initial schema. Each migration is idempotent so it is safe to call on every
// database open.
func runMigrations(db *sql.DB) error {
	// --- Migration v1: proposal review workflow (expiry + notes) ---
	hasExpiresAt, err := columnExists(db, "merge_proposals", "expires_at")
	if err != nil {
		return fmt.Errorf("check expires_at column: %w", err)
	}
	if !hasExpiresAt {
		migrations := []string{
			`ALTER TABLE merge_proposals ADD COLUMN expires_at INTEGER`,
			`ALTER TABLE merge_proposals ADD COLUMN review_notes TEXT`,
			`CREATE INDEX IF NOT EXISTS idx_proposals_expiry ON merge_proposals(status, expires_at)`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration v1: %w", err)
			}
		}
	}

	// --- Migration v2: multi-user items + secret scanning ---
	hasUserID, err := columnExists(db, "memory_items", "user_id")
	if err != nil {
		return fmt.Errorf("check user_id column: %w", err)
	}
	if !hasUserID {
		migrations := []string{
			`ALTER TABLE memory_items ADD COLUMN user_id TEXT`,
			`ALTER TABLE memory_items ADD COLUMN has_secrets INTEGER NOT NULL DEFAULT 0`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration v2: %w", err)
			}
		}
	}

	// --- Migration v3: reversal attribution ---
	hasReversedBy, err := columnExists(db, "merge_history", "reversed_by")
	if err != nil {
		return fmt.Errorf("check reversed_by column: %w", err)
	}
	if !hasReversedBy {
		for _, m := range []string{
			`ALTER TABLE merge_history ADD COLUMN reversed_by TEXT`,
			`ALTER TABLE merge_history ADD COLUMN reverse_note TEXT`,
		} {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration v3: %w", err)
			}
		}
	}

	return nil
}

// columnExists reports whether a column is present on a table. It fully
// drains and closes the PRAGMA result set before returning; with
// MaxOpenConns(1) a lingering open result set would deadlock the next query.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}

	found := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			rows.Close()
			return false, err
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, err
	}
	rows.Close()
	return found, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memory_items (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		user_id TEXT,
		memory_type TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		metadata TEXT,
		embedding BLOB,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_mergeable INTEGER NOT NULL DEFAULT 1,
		is_merged INTEGER NOT NULL DEFAULT 0,
		is_canonical INTEGER NOT NULL DEFAULT 0,
		merged_into_id TEXT,
		merge_source_ids TEXT,
		merge_version INTEGER NOT NULL DEFAULT 0,
		is_private INTEGER NOT NULL DEFAULT 0,
		has_secrets INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0.8,
		relevance REAL NOT NULL DEFAULT 0.5,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_project_active ON memory_items(project_id, is_active);
	CREATE INDEX IF NOT EXISTS idx_items_project_type ON memory_items(project_id, memory_type);
	CREATE INDEX IF NOT EXISTS idx_items_merged_into ON memory_items(merged_into_id);

	CREATE TABLE IF NOT EXISTS hash_cache (
		memory_id TEXT PRIMARY KEY REFERENCES memory_items(id) ON DELETE CASCADE,
		simhash TEXT NOT NULL,
		minhash BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS merge_proposals (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		source_ids TEXT NOT NULL,
		proposed_content TEXT NOT NULL,
		proposed_summary TEXT,
		proposed_tags TEXT NOT NULL DEFAULT '[]',
		proposed_metadata TEXT,
		detection_method TEXT NOT NULL,
		similarity_score REAL NOT NULL,
		confidence TEXT NOT NULL,
		merge_reason TEXT,
		conflict_warnings TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewed_at INTEGER,
		review_notes TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_proposals_project_status ON merge_proposals(project_id, status);
	CREATE INDEX IF NOT EXISTS idx_proposals_expiry ON merge_proposals(status, expires_at);

	CREATE TABLE IF NOT EXISTS merge_history (
		id TEXT PRIMARY KEY,
		proposal_id TEXT,
		source_ids TEXT NOT NULL,
		canonical_id TEXT NOT NULL,
		snapshots TEXT NOT NULL,
		strategy TEXT NOT NULL,
		tokens_saved INTEGER NOT NULL DEFAULT 0,
		is_reversed INTEGER NOT NULL DEFAULT 0,
		reversed_at INTEGER,
		reversed_by TEXT,
		reverse_note TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_canonical ON merge_history(canonical_id);
	CREATE INDEX IF NOT EXISTS idx_history_proposal ON merge_history(proposal_id);

	CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		dimension INTEGER NOT NULL,
		model TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ItemCount returns the total number of memory items across all projects.
func (db *DB) ItemCount() (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memory_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}
