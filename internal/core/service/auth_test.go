package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(newTestStore(t), &AuthServiceConfig{
		CacheTTL: time.Minute,
		Logger:   logger.Discard(),
	})
}

func TestAuthService_CreateAndValidate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{
		OrgID:     "acme",
		Name:      "field tablet",
		Role:      "member",
		CreatedBy: "flak-admin",
	})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if !domain.IsValidAPIKeyID(created.Key.KeyID) {
		t.Errorf("KeyID = %q", created.Key.KeyID)
	}
	if created.Key.RateLimit != domain.DefaultRateLimit {
		t.Errorf("RateLimit = %d, want default", created.Key.RateLimit)
	}

	// Twice: the second call is served from the cache.
	for i := 0; i < 2; i++ {
		key, err := svc.ValidateAPIKey(ctx, &ValidateAPIKeyRequest{
			KeyID:     created.Key.KeyID,
			KeySecret: created.Secret,
		})
		if err != nil {
			t.Fatalf("ValidateAPIKey() #%d error = %v", i, err)
		}
		if key.OrgID != "acme" || key.Role != domain.RoleMember {
			t.Errorf("ValidateAPIKey() = %+v", key)
		}
	}

	stored, err := svc.repo.GetAPIKey(ctx, created.Key.KeyID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastUsed == 0 {
		t.Error("LastUsed not recorded")
	}
}

func TestAuthService_ValidateRejects(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{OrgID: "acme", Name: "k", Role: "admin"})
	if err != nil {
		t.Fatal(err)
	}
	// Warm the cache so a wrong secret also exercises the cached path.
	if _, err := svc.ValidateAPIKey(ctx, &ValidateAPIKeyRequest{KeyID: created.Key.KeyID, KeySecret: created.Secret}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		keyID  string
		secret string
		want   error
	}{
		{"missing", "", "", domain.ErrAPIKeyMissing},
		{"unknown key", "flak-01hzzzzzzzzzzzzzzzzzzzzzzz", "flk_x", domain.ErrAPIKeyInvalid},
		{"wrong secret", created.Key.KeyID, "flk_wrong", domain.ErrAPIKeyInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAPIKey(ctx, &ValidateAPIKeyRequest{KeyID: tt.keyID, KeySecret: tt.secret})
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthService_SetStatus(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{OrgID: "acme", Name: "k", Role: "member"})
	if err != nil {
		t.Fatal(err)
	}
	req := &ValidateAPIKeyRequest{KeyID: created.Key.KeyID, KeySecret: created.Secret}
	if _, err := svc.ValidateAPIKey(ctx, req); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SetStatus(ctx, "globex", created.Key.KeyID, false); !errors.Is(err, domain.ErrAPIKeyNotFound) {
		t.Errorf("SetStatus() from another org error = %v, want ErrAPIKeyNotFound", err)
	}

	key, err := svc.SetStatus(ctx, "acme", created.Key.KeyID, false)
	if err != nil {
		t.Fatalf("SetStatus(false) error = %v", err)
	}
	if key.IsActive() {
		t.Error("key still active")
	}
	if _, err := svc.ValidateAPIKey(ctx, req); !errors.Is(err, domain.ErrAPIKeyDisabled) {
		t.Errorf("ValidateAPIKey() after disable error = %v, want ErrAPIKeyDisabled", err)
	}

	if _, err := svc.SetStatus(ctx, "acme", created.Key.KeyID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateAPIKey(ctx, req); err != nil {
		t.Errorf("ValidateAPIKey() after enable error = %v", err)
	}
}

func TestAuthService_CreateRejects(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *CreateAPIKeyRequest
		want error
	}{
		{"bad role", &CreateAPIKeyRequest{OrgID: "acme", Name: "k", Role: "root"}, domain.ErrAPIKeyValidation},
		{"no name", &CreateAPIKeyRequest{OrgID: "acme", Role: "admin"}, domain.ErrAPIKeyValidation},
		{"no org", &CreateAPIKeyRequest{Name: "k", Role: "admin"}, domain.ErrAPIKeyValidation},
		{"rate limit too high", &CreateAPIKeyRequest{OrgID: "acme", Name: "k", Role: "admin", RateLimit: domain.MaxRateLimit + 1}, domain.ErrAPIKeyValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateAPIKey(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("CreateAPIKey() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthService_ListAPIKeys(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	for _, org := range []string{"acme", "acme", "globex"} {
		if _, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{OrgID: org, Name: "k", Role: "member"}); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := svc.ListAPIKeys(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("ListAPIKeys(acme) = %d keys, want 2", len(keys))
	}
	if _, err := svc.ListAPIKeys(ctx, ""); !errors.Is(err, domain.ErrOrganizationRequired) {
		t.Errorf("ListAPIKeys(\"\") error = %v, want ErrOrganizationRequired", err)
	}
}

func TestAuthService_Permissions(t *testing.T) {
	svc := newTestAuthService(t)
	member := &domain.APIKey{Role: domain.RoleMember, OrgID: "acme"}
	admin := &domain.APIKey{Role: domain.RoleAdmin, OrgID: "acme"}

	if err := svc.CheckPermission(member, domain.PermLocationWrite); err != nil {
		t.Errorf("member write: %v", err)
	}
	if err := svc.CheckPermission(member, domain.PermLocationDelete); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("member delete error = %v, want ErrPermissionDenied", err)
	}
	if err := svc.CheckPermission(admin, domain.PermAPIKeyManage); err != nil {
		t.Errorf("admin manage: %v", err)
	}
	if err := svc.CheckOrganization(member, "globex"); !errors.Is(err, domain.ErrOrganizationMismatch) {
		t.Errorf("CheckOrganization() error = %v, want ErrOrganizationMismatch", err)
	}
	if err := svc.CheckOrganization(member, "acme"); err != nil {
		t.Errorf("CheckOrganization() error = %v", err)
	}
}

func TestAuthService_CheckRateLimit(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.CheckRateLimit(ctx, "flak-1", 3); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	if err := svc.CheckRateLimit(ctx, "flak-1", 3); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("CheckRateLimit() error = %v, want ErrRateLimited", err)
	}
	if err := svc.CheckRateLimit(ctx, "flak-2", 3); err != nil {
		t.Errorf("other key limited: %v", err)
	}

	svc.InvalidateCache("flak-1")
	if err := svc.CheckRateLimit(ctx, "flak-1", 3); err != nil {
		t.Errorf("limiter not reset: %v", err)
	}
}

func TestAuthService_Bootstrap(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	first, err := svc.Bootstrap(ctx, "acme")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if first == nil || first.Key.Role != domain.RoleAdmin || first.Key.CreatedBy != SystemCreator {
		t.Fatalf("Bootstrap() = %+v, want a system admin key", first)
	}

	again, err := svc.Bootstrap(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Error("Bootstrap() created a second key")
	}
}

// pausingRepo runs afterGet once, between reading a key and returning it.
type pausingRepo struct {
	*storage.DocStore
	afterGet func()
}

func (r *pausingRepo) GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error) {
	key, err := r.DocStore.GetAPIKey(ctx, keyID)
	if fn := r.afterGet; fn != nil {
		r.afterGet = nil
		fn()
	}
	return key, err
}

func TestAuthService_DisableDuringValidate(t *testing.T) {
	repo := &pausingRepo{DocStore: newTestStore(t)}
	svc := NewAuthService(repo, &AuthServiceConfig{CacheTTL: time.Minute, Logger: logger.Discard()})
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{OrgID: "acme", Name: "tablet", Role: "member"})
	if err != nil {
		t.Fatal(err)
	}
	keyID := created.Key.KeyID

	repo.afterGet = func() {
		if _, err := svc.SetStatus(ctx, "acme", keyID, false); err != nil {
			t.Errorf("SetStatus() error = %v", err)
		}
	}

	req := &ValidateAPIKeyRequest{KeyID: keyID, KeySecret: created.Secret}
	if _, err := svc.ValidateAPIKey(ctx, req); !errors.Is(err, domain.ErrAPIKeyDisabled) {
		t.Fatalf("in-flight ValidateAPIKey() error = %v, want ErrAPIKeyDisabled", err)
	}

	stored, err := repo.GetAPIKey(ctx, keyID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.IsActive() {
		t.Fatal("disable was overwritten by the validation")
	}
	if stored.LastUsed == 0 {
		t.Error("LastUsed not recorded")
	}

	if _, err := svc.ValidateAPIKey(ctx, req); !errors.Is(err, domain.ErrAPIKeyDisabled) {
		t.Errorf("next ValidateAPIKey() error = %v, want ErrAPIKeyDisabled", err)
	}
}

func TestAuthService_InvalidationSkipsCacheFill(t *testing.T) {
	repo := &pausingRepo{DocStore: newTestStore(t)}
	svc := NewAuthService(repo, &AuthServiceConfig{CacheTTL: time.Minute, Logger: logger.Discard()})
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{OrgID: "acme", Name: "tablet", Role: "member"})
	if err != nil {
		t.Fatal(err)
	}
	keyID := created.Key.KeyID

	repo.afterGet = func() { svc.InvalidateCache(keyID) }
	if _, err := svc.ValidateAPIKey(ctx, &ValidateAPIKeyRequest{KeyID: keyID, KeySecret: created.Secret}); err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if _, ok := svc.cache.Get(keyID); ok {
		t.Error("validation raced with an invalidation but filled the cache")
	}
}
