package apiv1

import (
	"encoding/json"
	"time"

	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// Header names.
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderErrorCode        = "X-Error-Code"
	HeaderAPIKeyID         = "X-API-Key-ID"
	HeaderAPIKey           = "X-API-Key"
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "X-Idempotent-Replay"
	HeaderAgentToken       = "X-Agent-Token"
)

// Success envelope values.
const (
	CodeOK    = "OK"
	MessageOK = "Success"
)

// Response is the standard API response envelope.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// RawResponse is Response with Data left undecoded.
type RawResponse struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Details   any             `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      CodeOK,
		Message:   MessageOK,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// HealthResponse is the body of GET /health and GET /ready.
type HealthResponse struct {
	Status  string `json:"status"`
	Time    string `json:"time"`
	Version string `json:"version,omitempty"`
}

// ListLocationsResponse is the response body for GET /v1/orgs/{org}/locations.
type ListLocationsResponse struct {
	Items []*domain.Location `json:"items"`
	Total int                `json:"total"`
}

// DeleteLocationResponse is the response body for DELETE /v1/orgs/{org}/locations/{id}.
type DeleteLocationResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// CreateAPIKeyRequest is the request body for POST /admin/v1/keys.
type CreateAPIKeyRequest struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
	RateLimit   int    `json:"rate_limit,omitempty"`
}

// CreateAPIKeyResponse is the response body for POST /admin/v1/keys.
// Secret is only ever returned here.
type CreateAPIKeyResponse struct {
	KeyID     string    `json:"key_id"`
	Secret    string    `json:"secret"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKeyResponse represents an API key without its secret.
type APIKeyResponse struct {
	KeyID       string     `json:"key_id"`
	OrgID       string     `json:"org_id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Description string     `json:"description,omitempty"`
	RateLimit   int        `json:"rate_limit"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// NewAPIKeyResponse converts a stored key for the API.
func NewAPIKeyResponse(k *domain.APIKey) APIKeyResponse {
	out := APIKeyResponse{
		KeyID:       k.KeyID,
		OrgID:       k.OrgID,
		Name:        k.Name,
		Role:        string(k.Role),
		Description: k.Description,
		RateLimit:   k.RateLimit,
		Enabled:     k.IsActive(),
		CreatedAt:   k.CreatedAtTime().UTC(),
	}
	if k.LastUsed != 0 {
		t := k.LastUsedAtTime().UTC()
		out.LastUsedAt = &t
	}
	return out
}

// ListAPIKeysResponse is the response body for GET /admin/v1/keys.
type ListAPIKeysResponse struct {
	Keys []APIKeyResponse `json:"keys"`
}

// UpdateAPIKeyStatusRequest is the request body for POST /admin/v1/keys/{key_id}/status.
type UpdateAPIKeyStatusRequest struct {
	Enabled bool `json:"enabled"`
}

// AgentStatusResponse is the response body for GET /v1/agent on the
// agent's control listener.
type AgentStatusResponse struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
	PID     int  `json:"pid"`
}

// ListPendingResponse is the response body for GET /v1/queue.
type ListPendingResponse struct {
	Items []*domain.PendingRecord `json:"items"`
	Total int                     `json:"total"`
}

// SyncResultResponse is the response body for POST /v1/queue/sync.
type SyncResultResponse struct {
	Synced     int   `json:"synced"`
	Failed     int   `json:"failed"`
	Remaining  int   `json:"remaining"`
	DurationMS int64 `json:"duration_ms"`
}
