package handler

import (
	"context"

	"github.com/fidloc/fidloc-go/internal/core/domain"
)

type contextKey string

const apiKeyKey contextKey = "fidloc.api_key"

// WithAPIKey stores the authenticated API key in the context.
func WithAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKeyFromContext retrieves the authenticated API key, or nil.
func APIKeyFromContext(ctx context.Context) *domain.APIKey {
	if key, ok := ctx.Value(apiKeyKey).(*domain.APIKey); ok {
		return key
	}
	return nil
}
