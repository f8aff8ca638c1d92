package handler

import (
	"net/http"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/core/service"
)

// adminKey returns the caller's key after checking it may manage keys.
// Keys are always managed within the caller's own organization.
func (h *Handler) adminKey(r *http.Request) (*domain.APIKey, error) {
	key := APIKeyFromContext(r.Context())
	if key == nil {
		return nil, domain.ErrAPIKeyMissing
	}
	if err := h.authSvc.CheckPermission(key, domain.PermAPIKeyManage); err != nil {
		return nil, err
	}
	return key, nil
}

// handleCreateAPIKey handles POST /admin/v1/keys.
func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, err := h.adminKey(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var req apiv1.CreateAPIKeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if req.Name == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("name is required"))
		return
	}
	if req.Role == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("role is required"))
		return
	}

	resp, err := h.authSvc.CreateAPIKey(r.Context(), &service.CreateAPIKeyRequest{
		OrgID:       caller.OrgID,
		Name:        req.Name,
		Role:        req.Role,
		Description: req.Description,
		RateLimit:   req.RateLimit,
		CreatedBy:   caller.KeyID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, apiv1.CreateAPIKeyResponse{
		KeyID:     resp.Key.KeyID,
		Secret:    resp.Secret,
		OrgID:     resp.Key.OrgID,
		Name:      resp.Key.Name,
		Role:      string(resp.Key.Role),
		CreatedAt: resp.Key.CreatedAtTime().UTC(),
	})
}

// handleListAPIKeys handles GET /admin/v1/keys.
func (h *Handler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	caller, err := h.adminKey(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	keys, err := h.authSvc.ListAPIKeys(r.Context(), caller.OrgID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	out := apiv1.ListAPIKeysResponse{Keys: make([]apiv1.APIKeyResponse, 0, len(keys))}
	for _, k := range keys {
		out.Keys = append(out.Keys, apiv1.NewAPIKeyResponse(k))
	}
	h.writeJSON(w, r, http.StatusOK, out)
}

// handleUpdateAPIKeyStatus handles POST /admin/v1/keys/{key_id}/status.
func (h *Handler) handleUpdateAPIKeyStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := h.adminKey(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	keyID := r.PathValue("key_id")
	if !domain.IsValidAPIKeyID(keyID) {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("invalid key id"))
		return
	}

	var req apiv1.UpdateAPIKeyStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if !req.Enabled && keyID == caller.KeyID {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("cannot disable the calling key"))
		return
	}

	key, err := h.authSvc.SetStatus(r.Context(), caller.OrgID, keyID, req.Enabled)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, apiv1.NewAPIKeyResponse(key))
}
