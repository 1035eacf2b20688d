package memory

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/privacy"
	"github.com/memfold/memfold/internal/store"
	"github.com/memfold/memfold/internal/vectors"
)

// Service is the facade for memory ingest and item CRUD: privacy filtering,
// secret detection, the exact-duplicate guard, embedding, and fingerprint
// upkeep all happen here.
type Service struct {
	projects   *store.ProjectStore
	items      *store.ItemStore
	embedder   *embedding.CachedEmbedder
	guard      *Deduplicator
	maintainer *dedup.Maintainer
	logger     *slog.Logger
}

// NewService creates the memory service with all dependencies. embedder may
// be nil; items are then stored without vectors.
func NewService(
	projects *store.ProjectStore,
	items *store.ItemStore,
	embedder *embedding.CachedEmbedder,
	guard *Deduplicator,
	maintainer *dedup.Maintainer,
	logger *slog.Logger,
) *Service {
	return &Service{
		projects:   projects,
		items:      items,
		embedder:   embedder,
		guard:      guard,
		maintainer: maintainer,
		logger:     logger,
	}
}

// Store ingests one memory item into a project, creating the project on
// first use. Byte-identical content short-circuits to the existing item.
func (s *Service) Store(projectName string, req *models.StoreRequest) (*models.StoreResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", models.ErrInvalidInput)
	}
	if !req.MemoryType.IsValid() {
		return nil, fmt.Errorf("%w: invalid memory type %q", models.ErrInvalidInput, req.MemoryType)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be in [0, 1]", models.ErrInvalidInput)
	}
	if req.Relevance < 0 || req.Relevance > 1 {
		return nil, fmt.Errorf("%w: relevance must be in [0, 1]", models.ErrInvalidInput)
	}

	// Content that is nothing but private blocks never enters the store.
	if privacy.HasOnlyPrivateContent(req.Content) {
		return nil, fmt.Errorf("%w: content is entirely private", models.ErrInvalidInput)
	}
	isPrivate := req.IsPrivate || privacy.ContainsPrivateTags(req.Content)
	content := strings.TrimSpace(privacy.StripPrivateTags(req.Content))

	secrets := privacy.DetectSecrets(content)
	if len(secrets) > 0 {
		s.logger.Warn("secret-like content stored", "kinds", secrets)
	}

	project, err := s.projects.Ensure(projectName)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure project: %v", models.ErrStorageUnavailable, err)
	}

	if existingID := s.guard.CheckExact(project.ID, req.MemoryType, content); existingID != "" {
		s.logger.Debug("exact duplicate, returning existing item", "id", existingID)
		return &models.StoreResponse{
			ID:           existingID,
			HasSecrets:   len(secrets) > 0,
			Deduplicated: true,
		}, nil
	}

	var emb []byte
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(content); err != nil {
			s.logger.Warn("embedding unavailable, storing without vector", "error", err)
		} else {
			emb = vectors.Encode(vec)
		}
	}

	now := time.Now().Unix()
	item := &models.MemoryItem{
		ID:          uuid.New().String(),
		ProjectID:   project.ID,
		UserID:      req.UserID,
		MemoryType:  req.MemoryType,
		Content:     content,
		Summary:     req.Summary,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
		Embedding:   emb,
		IsActive:    true,
		IsMergeable: req.IsMergeable == nil || *req.IsMergeable,
		IsPrivate:   isPrivate,
		HasSecrets:  len(secrets) > 0,
		Confidence:  req.Confidence,
		Relevance:   req.Relevance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if item.Confidence == 0 {
		item.Confidence = 0.8
	}
	if item.Relevance == 0 {
		item.Relevance = 0.5
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}

	if err := s.items.Insert(item); err != nil {
		return nil, fmt.Errorf("%w: store item: %v", models.ErrStorageUnavailable, err)
	}

	// Fingerprints are cache, not truth; a failure here just means detection
	// recomputes them on the fly.
	if err := s.maintainer.UpdateCache(item); err != nil {
		s.logger.Warn("fingerprint cache update failed", "id", item.ID, "error", err)
	}

	s.logger.Info("memory stored",
		"id", item.ID,
		"project", project.ID,
		"type", item.MemoryType,
		"private", item.IsPrivate,
		"embedded", len(emb) > 0,
	)
	return &models.StoreResponse{
		ID:         item.ID,
		HasSecrets: item.HasSecrets,
		Embedded:   len(emb) > 0,
	}, nil
}

// BulkStore ingests a batch, continuing past per-item failures.
func (s *Service) BulkStore(projectName string, req *models.BulkStoreRequest) (*models.BulkStoreResponse, error) {
	if req == nil || len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items are required", models.ErrInvalidInput)
	}

	resp := &models.BulkStoreResponse{IDs: []string{}}
	for i := range req.Items {
		r, err := s.Store(projectName, &req.Items[i])
		if err != nil {
			resp.Failed++
			s.logger.Error("bulk store item failed", "index", i, "error", err)
			continue
		}
		resp.Stored++
		resp.IDs = append(resp.IDs, r.ID)
	}
	return resp, nil
}

// GetByID fetches a single item.
func (s *Service) GetByID(id string) (*models.MemoryItem, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: item id is required", models.ErrInvalidInput)
	}
	item, err := s.items.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: load item: %v", models.ErrStorageUnavailable, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %s", models.ErrNotFound, id)
	}
	return item, nil
}

// List returns a page of a project's items. A project nobody has written to
// yet is just an empty one.
func (s *Service) List(projectName string, req *models.ListRequest) (*models.ListResponse, error) {
	if req == nil {
		req = &models.ListRequest{}
	}
	if req.MemoryType != "" && !req.MemoryType.IsValid() {
		return nil, fmt.Errorf("%w: invalid memory type %q", models.ErrInvalidInput, req.MemoryType)
	}
	req.ProjectID = store.ProjectID(projectName)

	items, total, err := s.items.List(req)
	if err != nil {
		s.logger.Error("list items failed, returning empty", "project", req.ProjectID, "error", err)
		return &models.ListResponse{Items: []*models.MemoryItem{}}, nil
	}
	if items == nil {
		items = []*models.MemoryItem{}
	}
	return &models.ListResponse{Items: items, Total: total}, nil
}

// Update applies a partial edit. Content changes rerun the privacy and
// secret scans, refresh the fingerprints, and re-embed (or clear the stale
// vector when embedding is down).
func (s *Service) Update(id string, req *models.UpdateRequest) (*models.MemoryItem, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: item id is required", models.ErrInvalidInput)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", models.ErrInvalidInput)
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		return nil, fmt.Errorf("%w: confidence must be in [0, 1]", models.ErrInvalidInput)
	}
	if req.Relevance != nil && (*req.Relevance < 0 || *req.Relevance > 1) {
		return nil, fmt.Errorf("%w: relevance must be in [0, 1]", models.ErrInvalidInput)
	}

	existing, err := s.items.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: load item: %v", models.ErrStorageUnavailable, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: item %s", models.ErrNotFound, id)
	}
	if existing.IsMerged {
		mergedInto := ""
		if existing.MergedIntoID != nil {
			mergedInto = *existing.MergedIntoID
		}
		return nil, fmt.Errorf("%w: item %s was merged into %s, reverse that merge first",
			models.ErrStateConflict, id, mergedInto)
	}

	contentChanged := false
	isPrivate, hasSecrets := existing.IsPrivate, existing.HasSecrets
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return nil, fmt.Errorf("%w: content cannot be empty", models.ErrInvalidInput)
		}
		if privacy.HasOnlyPrivateContent(*req.Content) {
			return nil, fmt.Errorf("%w: content is entirely private", models.ErrInvalidInput)
		}
		isPrivate = isPrivate || privacy.ContainsPrivateTags(*req.Content)
		stripped := strings.TrimSpace(privacy.StripPrivateTags(*req.Content))
		hasSecrets = privacy.HasSecrets(stripped)
		contentChanged = stripped != existing.Content
		*req.Content = stripped
	}

	updated, err := s.items.Update(id, req)
	if err != nil {
		return nil, fmt.Errorf("%w: update item: %v", models.ErrStorageUnavailable, err)
	}

	if contentChanged {
		if isPrivate != existing.IsPrivate || hasSecrets != existing.HasSecrets {
			if err := s.items.SetSensitivity(id, isPrivate, hasSecrets); err != nil {
				s.logger.Warn("sensitivity flag update failed", "id", id, "error", err)
			} else {
				updated.IsPrivate, updated.HasSecrets = isPrivate, hasSecrets
			}
		}

		if err := s.maintainer.UpdateCache(updated); err != nil {
			s.logger.Warn("fingerprint cache update failed", "id", id, "error", err)
		}

		// The stored vector describes the old content. When re-embedding is
		// not possible it is cleared rather than left stale.
		var emb []byte
		if s.embedder != nil {
			if vec, err := s.embedder.Embed(updated.Content); err != nil {
				s.logger.Warn("re-embedding unavailable, clearing stale vector", "id", id, "error", err)
			} else {
				emb = vectors.Encode(vec)
			}
		}
		if err := s.items.UpdateEmbedding(id, emb); err != nil {
			s.logger.Warn("embedding update failed", "id", id, "error", err)
		} else {
			updated.Embedding = emb
		}
	}

	s.logger.Info("memory updated", "id", id, "content_changed", contentChanged)
	return updated, nil
}

// Delete removes an item: a soft delete deactivates it, a hard delete drops
// the row and its cache entry. Merged sources cannot be hard-deleted while
// their merge stands, or reversal would have nothing to restore into.
func (s *Service) Delete(id string, hard bool) error {
	if id == "" {
		return fmt.Errorf("%w: item id is required", models.ErrInvalidInput)
	}
	existing, err := s.items.GetByID(id)
	if err != nil {
		return fmt.Errorf("%w: load item: %v", models.ErrStorageUnavailable, err)
	}
	if existing == nil {
		return fmt.Errorf("%w: item %s", models.ErrNotFound, id)
	}

	if hard {
		if existing.IsMerged {
			return fmt.Errorf("%w: item %s is an archived merge source, reverse the merge first",
				models.ErrStateConflict, id)
		}
		if err := s.items.Delete(id); err != nil {
			return fmt.Errorf("%w: delete item: %v", models.ErrStorageUnavailable, err)
		}
	} else {
		if err := s.items.Deactivate(id); err != nil {
			return fmt.Errorf("%w: deactivate item: %v", models.ErrStorageUnavailable, err)
		}
	}

	s.logger.Info("memory deleted", "id", id, "hard", hard)
	return nil
}

// Projects lists every known project.
func (s *Service) Projects() ([]*models.Project, error) {
	projects, err := s.projects.List()
	if err != nil {
		s.logger.Error("list projects failed, returning empty", "error", err)
		return []*models.Project{}, nil
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return projects, nil
}
