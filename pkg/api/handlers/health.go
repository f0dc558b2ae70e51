package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/api/response"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store   storage.Storage
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store storage.Storage, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		version: version,
		started: time.Now().UTC(),
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe). Readiness means the
// storage backend answers queries; a not-found probe still proves that.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.GetUser(r.Context(), "readiness-probe")

	var notFound *storage.NotFoundError
	if err == nil || errors.As(err, &notFound) {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
		return
	}

	response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
		"ready": false,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"version":    h.version,
		"started_at": h.started.Format(time.RFC3339),
		"uptime":     time.Since(h.started).String(),
	})
}
