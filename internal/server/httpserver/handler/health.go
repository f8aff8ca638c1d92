package handler

import (
	"net/http"
	"time"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/infra/buildinfo"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, apiv1.HealthResponse{
		Status:  "healthy",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: buildinfo.Get().Version,
	})
}

// handleReady handles GET /ready. It fails while the store is closed.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			h.writeError(w, r, http.StatusServiceUnavailable,
				domain.ErrServiceUnavailable.Code, domain.ErrServiceUnavailable.Message, err.Error())
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, apiv1.HealthResponse{
		Status: "ready",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
