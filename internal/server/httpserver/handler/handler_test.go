package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

type testHandler struct {
	*Handler
	admin  *domain.APIKey
	member *domain.APIKey
}

func newTestHandler(t *testing.T, store Pinger) *testHandler {
	t.Helper()
	kv, err := storage.NewBadgerEngine(storage.KVConfig{InMemory: true}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	docs := storage.NewDocStore(kv)
	if store == nil {
		store = docs
	}

	auth := service.NewAuthService(docs, &service.AuthServiceConfig{Logger: logger.Discard()})
	h := New(service.NewLocationService(docs, nil, logger.Discard()), auth, store, logger.Discard())

	mk := func(role domain.Role) *domain.APIKey {
		resp, err := auth.CreateAPIKey(context.Background(), &service.CreateAPIKeyRequest{
			OrgID: "acme", Name: string(role), Role: string(role),
		})
		if err != nil {
			t.Fatalf("CreateAPIKey() error = %v", err)
		}
		return resp.Key
	}
	return &testHandler{Handler: h, admin: mk(domain.RoleAdmin), member: mk(domain.RoleMember)}
}

// do serves one request as key (nil = unauthenticated).
func (h *testHandler) do(method, path string, key *domain.APIKey, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	if key != nil {
		req = req.WithContext(WithAPIKey(req.Context(), key))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) apiv1.RawResponse {
	t.Helper()
	var env apiv1.RawResponse
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := h.do(http.MethodGet, "/health", nil, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body apiv1.HealthResponse
	env := decodeEnvelope(t, rec, &body)
	if env.Code != apiv1.CodeOK || body.Status != "healthy" || body.Version == "" {
		t.Errorf("envelope = %+v, body = %+v", env, body)
	}
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("closed") }

func TestHandleReady(t *testing.T) {
	h := newTestHandler(t, nil)
	if rec := h.do(http.MethodGet, "/ready", nil, nil, nil); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}

	down := newTestHandler(t, downStore{})
	rec := down.do(http.MethodGet, "/ready", nil, nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get(apiv1.HeaderErrorCode); got != domain.ErrServiceUnavailable.Code {
		t.Errorf("error code = %q", got)
	}
}

func TestHandleCreateLocation(t *testing.T) {
	h := newTestHandler(t, nil)
	loc := &domain.Location{Name: "Oak Hut", Latitude: 1, Longitude: 2}
	idem := map[string]string{apiv1.HeaderIdempotencyKey: "pending_abc"}

	rec := h.do(http.MethodPost, "/v1/orgs/acme/locations", h.member, loc, idem)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var first domain.Location
	decodeEnvelope(t, rec, &first)
	if first.LocationType != domain.LocationTypeHub {
		t.Errorf("LocationType = %q, want default hub", first.LocationType)
	}

	rec = h.do(http.MethodPost, "/v1/orgs/acme/locations", h.member, loc, idem)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(apiv1.HeaderIdempotentReplay) != "true" {
		t.Error("replay header not set")
	}
	var second domain.Location
	decodeEnvelope(t, rec, &second)
	if second.ID != first.ID {
		t.Errorf("replay ID = %q, want %q", second.ID, first.ID)
	}
}

func TestHandlerErrors(t *testing.T) {
	h := newTestHandler(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		key      func() *domain.APIKey
		body     any
		wantCode string
		want     int
	}{
		{"unauthenticated", http.MethodGet, "/v1/orgs/acme/locations", func() *domain.APIKey { return nil }, nil,
			domain.ErrAPIKeyMissing.Code, http.StatusUnauthorized},
		{"other org", http.MethodGet, "/v1/orgs/globex/locations", func() *domain.APIKey { return h.admin }, nil,
			domain.ErrOrganizationMismatch.Code, http.StatusForbidden},
		{"member delete", http.MethodDelete, "/v1/orgs/acme/locations/loc-x", func() *domain.APIKey { return h.member }, nil,
			domain.ErrPermissionDenied.Code, http.StatusForbidden},
		{"unknown location", http.MethodGet, "/v1/orgs/acme/locations/loc-missing", func() *domain.APIKey { return h.member }, nil,
			domain.ErrLocationNotFound.Code, http.StatusNotFound},
		{"bad type filter", http.MethodGet, "/v1/orgs/acme/locations?type=castle", func() *domain.APIKey { return h.member }, nil,
			domain.ErrInvalidArgument.Code, http.StatusBadRequest},
		{"bad latitude", http.MethodPost, "/v1/orgs/acme/locations", func() *domain.APIKey { return h.member },
			&domain.Location{Name: "x", Latitude: 91}, domain.ErrLocationValidation.Code, http.StatusBadRequest},
		{"member manages keys", http.MethodGet, "/admin/v1/keys", func() *domain.APIKey { return h.member }, nil,
			domain.ErrPermissionDenied.Code, http.StatusForbidden},
		{"key without name", http.MethodPost, "/admin/v1/keys", func() *domain.APIKey { return h.admin },
			&apiv1.CreateAPIKeyRequest{Role: "member"}, domain.ErrMissingArgument.Code, http.StatusBadRequest},
		{"invalid key id", http.MethodPost, "/admin/v1/keys/nope/status", func() *domain.APIKey { return h.admin },
			&apiv1.UpdateAPIKeyStatusRequest{}, domain.ErrInvalidArgument.Code, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.path, tt.key(), tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if got := rec.Header().Get(apiv1.HeaderErrorCode); got != tt.wantCode {
				t.Errorf("error code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestHandlerMalformedBody(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/orgs/acme/locations", bytes.NewBufferString("{not json"))
	req = req.WithContext(WithAPIKey(req.Context(), h.admin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec, nil)
	if env.Code != domain.ErrBadRequest.Code {
		t.Errorf("code = %q, want %q", env.Code, domain.ErrBadRequest.Code)
	}
}

func TestHandleListAPIKeys_OwnOrganizationOnly(t *testing.T) {
	h := newTestHandler(t, nil)
	if _, err := h.authSvc.CreateAPIKey(context.Background(), &service.CreateAPIKeyRequest{
		OrgID: "globex", Name: "other", Role: "admin",
	}); err != nil {
		t.Fatal(err)
	}

	rec := h.do(http.MethodGet, "/admin/v1/keys", h.admin, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out apiv1.ListAPIKeysResponse
	decodeEnvelope(t, rec, &out)
	if len(out.Keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(out.Keys))
	}
	for _, k := range out.Keys {
		if k.OrgID != "acme" {
			t.Errorf("listed key of org %q", k.OrgID)
		}
	}
}
