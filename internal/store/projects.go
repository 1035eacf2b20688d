package store

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/memfold/memfold/internal/models"
)

// ProjectStore handles project rows. Projects are created lazily on first
// write and never deleted.
type ProjectStore struct {
	db *DB
}

func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

// ProjectID derives a stable 16-hex-char ID from a project name.
func ProjectID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return fmt.Sprintf("%x", sum)[:16]
}

// Ensure returns the project with the given name, creating it if missing.
func (s *ProjectStore) Ensure(name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is empty")
	}

	id := ProjectID(name)
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, now)
	if err != nil {
		return nil, fmt.Errorf("ensure project: %w", err)
	}

	return s.GetByID(id)
}

// GetByID fetches a project. Returns (nil, nil) when not found.
func (s *ProjectStore) GetByID(id string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRow(`SELECT id, name, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// GetByName fetches a project by its name. Returns (nil, nil) when not found.
func (s *ProjectStore) GetByName(name string) (*models.Project, error) {
	return s.GetByID(ProjectID(name))
}

// List returns all projects ordered by creation time.
func (s *ProjectStore) List() ([]*models.Project, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var result []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}
