package api

import (
	"net/http"

	"github.com/memfold/memfold/internal/embedding"
	"github.com/memfold/memfold/internal/models"
	"github.com/memfold/memfold/internal/store"
)

type HealthHandler struct {
	db     *store.DB
	ollama *embedding.OllamaClient
}

func NewHealthHandler(db *store.DB, ollama *embedding.OllamaClient) *HealthHandler {
	return &HealthHandler{db: db, ollama: ollama}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status: "ok",
	}

	// Check Ollama
	if err := h.ollama.HealthCheck(); err != nil {
		resp.Ollama = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Ollama = models.ServiceCheck{Status: "ok"}
	}

	// Check DB
	count, err := h.db.ItemCount()
	if err != nil {
		resp.DB = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = models.ServiceCheck{Status: "ok"}
		resp.ItemCount = count
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
