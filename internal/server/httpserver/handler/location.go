package handler

import (
	"net/http"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// handleListLocations handles GET /v1/orgs/{org}/locations.
// Query parameters: search (name or address substring), type.
func (h *Handler) handleListLocations(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if _, err := h.authorize(r, org, domain.PermLocationRead); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := domain.LocationFilter{
		Search: q.Get("search"),
		Type:   domain.LocationType(q.Get("type")),
	}

	items, err := h.locationSvc.List(r.Context(), org, filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.Location{}
	}

	h.writeJSON(w, r, http.StatusOK, apiv1.ListLocationsResponse{
		Items: items,
		Total: len(items),
	})
}

// handleCreateLocation handles POST /v1/orgs/{org}/locations.
//
// A repeated Idempotency-Key answers 200 with the document stored by the
// first request and X-Idempotent-Replay: true.
func (h *Handler) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	key, err := h.authorize(r, org, domain.PermLocationWrite)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var loc domain.Location
	if err := decodeBody(w, r, &loc); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	idemKey := r.Header.Get(apiv1.HeaderIdempotencyKey)
	res, err := h.locationSvc.Create(r.Context(), org, &loc, key.KeyID, idemKey)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set(apiv1.HeaderIdempotentReplay, "true")
		status = http.StatusOK
	}
	h.writeJSON(w, r, status, res.Location)
}

// handleGetLocation handles GET /v1/orgs/{org}/locations/{id}.
func (h *Handler) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if _, err := h.authorize(r, org, domain.PermLocationRead); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	loc, err := h.locationSvc.Get(r.Context(), org, r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, loc)
}

// handleUpdateLocation handles PUT /v1/orgs/{org}/locations/{id}.
func (h *Handler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if _, err := h.authorize(r, org, domain.PermLocationWrite); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var loc domain.Location
	if err := decodeBody(w, r, &loc); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	updated, err := h.locationSvc.Update(r.Context(), org, r.PathValue("id"), &loc)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, updated)
}

// handleDeleteLocation handles DELETE /v1/orgs/{org}/locations/{id}.
func (h *Handler) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if _, err := h.authorize(r, org, domain.PermLocationDelete); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	id := r.PathValue("id")
	if err := h.locationSvc.Delete(r.Context(), org, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, apiv1.DeleteLocationResponse{ID: id, Deleted: true})
}
