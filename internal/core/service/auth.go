package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/pkg/cmap"
	"github.com/fidloc/fidloc-go/pkg/token"
)

// APIKeyRepository defines the storage interface for API key operations.
type APIKeyRepository interface {
	// GetAPIKey retrieves an API key by ID.
	GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error)

	// CreateAPIKey creates a new API key.
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error

	// UpdateAPIKey applies mutate to the stored key atomically and
	// returns the saved key.
	UpdateAPIKey(ctx context.Context, keyID string, mutate func(key *domain.APIKey) error) (*domain.APIKey, error)

	// ListAPIKeys retrieves the keys of org, or all keys when org is empty.
	ListAPIKeys(ctx context.Context, org string) ([]*domain.APIKey, error)

	// CountAPIKeys returns the number of stored keys.
	CountAPIKeys(ctx context.Context) (int, error)
}

// SystemCreator is recorded as the creator of keys made by Bootstrap.
const SystemCreator = "system"

// AuthService handles API key authentication and authorization.
type AuthService struct {
	repo     APIKeyRepository
	cache    *cmap.Map[*cachedKey]
	limiters *cmap.Map[*rate.Limiter]
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// epoch advances on every invalidation. A validation that saw a
	// different epoch before its store round trip does not fill the cache.
	epoch atomic.Uint64
}

// cachedKey holds a validated key and a fast hash of the secret that
// passed Argon2id verification, so repeat requests skip the slow hash.
type cachedKey struct {
	key        *domain.APIKey
	secretHash string
	expiresAt  time.Time
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// CacheTTL is the cache time-to-live for validated API keys (default: 60s).
	CacheTTL time.Duration

	// Logger receives authentication events.
	Logger *slog.Logger
}

// DefaultAuthServiceConfig returns default configuration.
func DefaultAuthServiceConfig() *AuthServiceConfig {
	return &AuthServiceConfig{
		CacheTTL: 60 * time.Second,
	}
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo APIKeyRepository, config *AuthServiceConfig) *AuthService {
	if config == nil {
		config = DefaultAuthServiceConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		repo:     repo,
		cache:    cmap.New[*cachedKey](),
		limiters: cmap.New[*rate.Limiter](),
		ttl:      config.CacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateAPIKeyRequest contains parameters for API key validation.
type ValidateAPIKeyRequest struct {
	KeyID     string
	KeySecret string
	ClientIP  string
}

// ValidateAPIKey checks the credentials and returns a copy of the key.
// Unknown keys and wrong secrets both yield ErrAPIKeyInvalid.
func (s *AuthService) ValidateAPIKey(ctx context.Context, req *ValidateAPIKeyRequest) (*domain.APIKey, error) {
	if req.KeyID == "" || req.KeySecret == "" {
		return nil, domain.ErrAPIKeyMissing
	}

	if c, ok := s.cache.Get(req.KeyID); ok && s.now().Before(c.expiresAt) {
		if token.Verify(req.KeySecret, c.secretHash) {
			if !c.key.IsActive() {
				return nil, domain.ErrAPIKeyDisabled
			}
			return c.key.Clone(), nil
		}
		// Secret mismatch; fall through to the store.
	}

	epoch := s.epoch.Load()
	key, err := s.repo.GetAPIKey(ctx, req.KeyID)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, domain.ErrAPIKeyInvalid
		}
		return nil, err
	}

	if !domain.VerifySecret(req.KeySecret, key.SecretHash) {
		s.logger.WarnContext(ctx, "api key secret mismatch",
			"key_id", req.KeyID,
			"client_ip", req.ClientIP)
		return nil, domain.ErrAPIKeyInvalid.WithDetails("invalid secret")
	}
	if !key.IsActive() {
		return nil, domain.ErrAPIKeyDisabled
	}

	// Only last_used is written; the status is re-read in the same
	// transaction so a concurrent disable wins.
	touched, err := s.repo.UpdateAPIKey(ctx, key.KeyID, func(k *domain.APIKey) error {
		k.Touch()
		return nil
	})
	if err != nil {
		return nil, err
	}
	key = touched
	if !key.IsActive() {
		return nil, domain.ErrAPIKeyDisabled
	}

	if s.epoch.Load() != epoch {
		return key, nil
	}
	s.cache.Set(req.KeyID, &cachedKey{
		key:        key.Clone(),
		secretHash: token.Hash(req.KeySecret),
		expiresAt:  s.now().Add(s.ttl),
	})
	if s.epoch.Load() != epoch {
		s.cache.Delete(req.KeyID)
	}
	return key, nil
}

// CheckPermission checks if an API key has the required permission.
func (s *AuthService) CheckPermission(apiKey *domain.APIKey, perm domain.Permission) error {
	if !domain.HasPermission(apiKey.Role, perm) {
		return domain.ErrPermissionDenied.WithDetails(
			"role " + string(apiKey.Role) + " does not have permission " + string(perm),
		)
	}
	return nil
}

// CheckOrganization checks that an API key may act on org.
func (s *AuthService) CheckOrganization(apiKey *domain.APIKey, org string) error {
	if apiKey.OrgID != org {
		return domain.ErrOrganizationMismatch
	}
	return nil
}

// CheckRateLimit checks if an API key has exceeded its rate limit.
func (s *AuthService) CheckRateLimit(ctx context.Context, keyID string, rateLimit int) error {
	if rateLimit <= 0 {
		rateLimit = domain.DefaultRateLimit
	}
	limiter := s.limiters.GetOrCreate(keyID, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	})

	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		return domain.ErrRateLimited.WithDetails(
			"rate limit exceeded, retry after " + delay.String(),
		)
	}
	return nil
}

// InvalidateCache drops the cached validation and limiter of a key.
func (s *AuthService) InvalidateCache(keyID string) {
	s.epoch.Add(1)
	s.cache.Delete(keyID)
	s.limiters.Delete(keyID)
}

// CreateAPIKeyRequest contains parameters for creating a new API key.
type CreateAPIKeyRequest struct {
	OrgID       string
	Name        string
	Role        string
	Description string
	RateLimit   int
	CreatedBy   string
}

// CreateAPIKeyResponse contains the new key and its plaintext secret.
// The secret cannot be recovered later.
type CreateAPIKeyResponse struct {
	Key    *domain.APIKey
	Secret string
}

// CreateAPIKey creates a new API key.
func (s *AuthService) CreateAPIKey(ctx context.Context, req *CreateAPIKeyRequest) (*CreateAPIKeyResponse, error) {
	if !domain.IsValidRole(req.Role) {
		return nil, domain.ErrAPIKeyValidation.WithDetails("role must be admin or member")
	}
	if req.Name == "" {
		return nil, domain.ErrAPIKeyValidation.WithDetails("name is required")
	}

	apiKey, secret, err := domain.NewAPIKey(req.OrgID, req.Name, domain.Role(req.Role))
	if err != nil {
		return nil, err
	}
	apiKey.Description = req.Description
	apiKey.CreatedBy = req.CreatedBy
	if req.RateLimit > 0 {
		apiKey.RateLimit = req.RateLimit
	}
	if err := apiKey.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateAPIKey(ctx, apiKey); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "api key created",
		"key_id", apiKey.KeyID,
		"org", apiKey.OrgID,
		"role", string(apiKey.Role),
		"created_by", apiKey.CreatedBy)
	return &CreateAPIKeyResponse{Key: apiKey, Secret: secret}, nil
}

// ListAPIKeys returns the keys of org.
func (s *AuthService) ListAPIKeys(ctx context.Context, org string) ([]*domain.APIKey, error) {
	if err := domain.ValidateOrgID(org); err != nil {
		return nil, err
	}
	return s.repo.ListAPIKeys(ctx, org)
}

// SetStatus enables or disables a key of org. Keys of other
// organizations are reported as not found.
func (s *AuthService) SetStatus(ctx context.Context, org, keyID string, enabled bool) (*domain.APIKey, error) {
	status := domain.KeyStatusDisabled
	if enabled {
		status = domain.KeyStatusActive
	}
	apiKey, err := s.repo.UpdateAPIKey(ctx, keyID, func(k *domain.APIKey) error {
		if k.OrgID != org {
			return domain.ErrAPIKeyNotFound
		}
		k.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateCache(keyID)
	s.logger.InfoContext(ctx, "api key status changed",
		"key_id", keyID,
		"org", org,
		"status", string(apiKey.Status))
	return apiKey, nil
}

// Bootstrap creates the first admin key for org when the store holds no
// keys at all. It returns nil when keys already exist.
func (s *AuthService) Bootstrap(ctx context.Context, org string) (*CreateAPIKeyResponse, error) {
	if err := domain.ValidateOrgID(org); err != nil {
		return nil, err
	}
	n, err := s.repo.CountAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("count api keys: %w", err)
	}
	if n > 0 {
		return nil, nil
	}

	return s.CreateAPIKey(ctx, &CreateAPIKeyRequest{
		OrgID:       org,
		Name:        "bootstrap-admin",
		Role:        string(domain.RoleAdmin),
		Description: "created on first start",
		CreatedBy:   SystemCreator,
	})
}
