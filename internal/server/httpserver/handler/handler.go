package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	locationSvc *service.LocationService
	authSvc     *service.AuthService
	store       Pinger
	logger      *slog.Logger
	mux         *http.ServeMux
}

// New creates a new Handler with the given services. store backs /ready.
func New(locationSvc *service.LocationService, authSvc *service.AuthService, store Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		locationSvc: locationSvc,
		authSvc:     authSvc,
		store:       store,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints (no auth required)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Location collection of an organization
	h.mux.HandleFunc("GET /v1/orgs/{org}/locations", h.handleListLocations)
	h.mux.HandleFunc("POST /v1/orgs/{org}/locations", h.handleCreateLocation)
	h.mux.HandleFunc("GET /v1/orgs/{org}/locations/{id}", h.handleGetLocation)
	h.mux.HandleFunc("PUT /v1/orgs/{org}/locations/{id}", h.handleUpdateLocation)
	h.mux.HandleFunc("DELETE /v1/orgs/{org}/locations/{id}", h.handleDeleteLocation)

	// API Key management endpoints
	h.mux.HandleFunc("POST /admin/v1/keys", h.handleCreateAPIKey)
	h.mux.HandleFunc("GET /admin/v1/keys", h.handleListAPIKeys)
	h.mux.HandleFunc("POST /admin/v1/keys/{key_id}/status", h.handleUpdateAPIKeyStatus)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := apiv1.NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(apiv1.HeaderRequestID, requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := apiv1.NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(apiv1.HeaderErrorCode, code)
	w.Header().Set(apiv1.HeaderRequestID, requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// getRequestID extracts request ID from context or header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(apiv1.HeaderRequestID)
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := domain.HTTPStatus(de.Code)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed", "code", de.Code, "error", err)
		}
		var details any
		if de.Details != "" {
			details = de.Details
		}
		h.writeError(w, r, status, de.Code, de.Message, details)
		return
	}

	// Generic internal error
	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError,
		domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return domain.ErrBadRequest.WithDetails(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// authorize checks that the caller's key belongs to org and grants perm.
func (h *Handler) authorize(r *http.Request, org string, perm domain.Permission) (*domain.APIKey, error) {
	key := APIKeyFromContext(r.Context())
	if key == nil {
		return nil, domain.ErrAPIKeyMissing
	}
	if err := h.authSvc.CheckOrganization(key, org); err != nil {
		return nil, err
	}
	if err := h.authSvc.CheckPermission(key, perm); err != nil {
		return nil, err
	}
	return key, nil
}
