package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/memfold/memfold/internal/memory"
	"github.com/memfold/memfold/internal/models"
)

type MemoryHandler struct {
	svc *memory.Service
}

func NewMemoryHandler(svc *memory.Service) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

// Projects handles GET /projects
func (h *MemoryHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Projects()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// List handles GET /projects/{project}/memories
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	activeOnly := r.URL.Query().Get("all") != "true"

	req := &models.ListRequest{
		MemoryType: models.MemoryType(r.URL.Query().Get("type")),
		ActiveOnly: activeOnly,
		Limit:      limit,
		Offset:     offset,
	}

	resp, err := h.svc.List(chi.URLParam(r, "project"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Store handles POST /projects/{project}/memories
func (h *MemoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req models.StoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Store(chi.URLParam(r, "project"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// BulkStore handles POST /projects/{project}/memories/bulk
func (h *MemoryHandler) BulkStore(w http.ResponseWriter, r *http.Request) {
	var req models.BulkStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.BulkStore(chi.URLParam(r, "project"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /memories/{id}
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Update handles PATCH /memories/{id}
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.svc.Update(chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /memories/{id}. The default is a soft delete;
// ?hard=true drops the row.
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.svc.Delete(chi.URLParam(r, "id"), hard); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
