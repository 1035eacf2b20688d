package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/memfold/memfold/internal/dedup"
	"github.com/memfold/memfold/internal/merge"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/store"
)

type DedupHandler struct {
	svc        *merge.Service
	maintainer *dedup.Maintainer
}

func NewDedupHandler(svc *merge.Service, maintainer *dedup.Maintainer) *DedupHandler {
	return &DedupHandler{svc: svc, maintainer: maintainer}
}

// projectID resolves the {project} path segment. Project IDs are derived
// from names, so no lookup is needed; an unknown project just scans empty.
func projectID(r *http.Request) string {
	return store.ProjectID(chi.URLParam(r, "project"))
}

// Detect handles POST /projects/{project}/dedup/detect
func (h *DedupHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req models.DetectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Detect(projectID(r), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListProposals handles GET /projects/{project}/dedup/proposals
func (h *DedupHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	resp, err := h.svc.ListProposals(projectID(r), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview handles GET /dedup/proposals/{id}/preview
func (h *DedupHandler) Preview(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Preview(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Approve handles POST /dedup/proposals/{id}/approve
func (h *DedupHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Approve(chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reject handles POST /dedup/proposals/{id}/reject
func (h *DedupHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	proposal, err := h.svc.Reject(chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// Reverse handles POST /dedup/history/{id}/reverse
func (h *DedupHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req models.ReverseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Reverse(chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /projects/{project}/dedup/history
func (h *DedupHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.svc.ListHistory(projectID(r), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// Stats handles GET /projects/{project}/dedup/stats
func (h *DedupHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(projectID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RebuildCache handles POST /projects/{project}/dedup/cache/rebuild
func (h *DedupHandler) RebuildCache(w http.ResponseWriter, r *http.Request) {
	resp, err := h.maintainer.RebuildProject(projectID(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Expire handles POST /dedup/expire
func (h *DedupHandler) Expire(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ExpireStale()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}
