package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/infra/buildinfo"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a non-JSON error body is kept.
const maxErrorBody = 512

// Client talks to the document store over HTTP.
type Client struct {
	baseURL   string
	client    *http.Client
	apiKeyID  string
	apiKey    string
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithTLSConfig sets the TLS configuration for https servers.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.client.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     cfg,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 4,
		}
	}
}

// New creates a client for server. A server without a scheme is
// reached over http.
func New(server, apiKeyID, apiKey string, opts ...Option) *Client {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &Client{
		baseURL:   baseURL,
		apiKeyID:  apiKeyID,
		apiKey:    apiKey,
		userAgent: buildinfo.UserAgent("fidloc"),
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsRetryable reports whether err may go away on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrRemoteUnavailable)
}

// Health checks that the server answers GET /health.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil, nil, nil)
	return err
}

// CreateLocation writes loc under org. A non-empty idempotencyKey makes
// retries safe: the server returns the document created by the first
// request with that key.
func (c *Client) CreateLocation(ctx context.Context, org string, loc *domain.Location, idempotencyKey string) (*domain.Location, error) {
	stored, _, err := c.CreateLocationReplay(ctx, org, loc, idempotencyKey)
	return stored, err
}

// CreateLocationReplay is CreateLocation that also reports whether the
// server replayed an earlier write.
func (c *Client) CreateLocationReplay(ctx context.Context, org string, loc *domain.Location, idempotencyKey string) (*domain.Location, bool, error) {
	var hdr http.Header
	if idempotencyKey != "" {
		hdr = http.Header{apiv1.HeaderIdempotencyKey: []string{idempotencyKey}}
	}

	out := &domain.Location{}
	resp, err := c.do(ctx, http.MethodPost, locationsPath(org), nil, hdr, loc, out)
	if err != nil {
		return nil, false, err
	}
	return out, resp.Header.Get(apiv1.HeaderIdempotentReplay) == "true", nil
}

// ListLocations returns the locations of org matching filter.
func (c *Client) ListLocations(ctx context.Context, org string, filter domain.LocationFilter) ([]*domain.Location, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}

	var out apiv1.ListLocationsResponse
	if _, err := c.do(ctx, http.MethodGet, locationsPath(org), q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetLocation returns one location.
func (c *Client) GetLocation(ctx context.Context, org, id string) (*domain.Location, error) {
	out := &domain.Location{}
	if _, err := c.do(ctx, http.MethodGet, locationPath(org, id), nil, nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateLocation replaces the editable fields of a location.
func (c *Client) UpdateLocation(ctx context.Context, org, id string, loc *domain.Location) (*domain.Location, error) {
	out := &domain.Location{}
	if _, err := c.do(ctx, http.MethodPut, locationPath(org, id), nil, nil, loc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteLocation removes a location.
func (c *Client) DeleteLocation(ctx context.Context, org, id string) error {
	_, err := c.do(ctx, http.MethodDelete, locationPath(org, id), nil, nil, nil, nil)
	return err
}

// CreateAPIKey creates a key in the caller's organization.
func (c *Client) CreateAPIKey(ctx context.Context, req *apiv1.CreateAPIKeyRequest) (*apiv1.CreateAPIKeyResponse, error) {
	out := &apiv1.CreateAPIKeyResponse{}
	if _, err := c.do(ctx, http.MethodPost, "/admin/v1/keys", nil, nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAPIKeys lists the keys of the caller's organization.
func (c *Client) ListAPIKeys(ctx context.Context) ([]apiv1.APIKeyResponse, error) {
	var out apiv1.ListAPIKeysResponse
	if _, err := c.do(ctx, http.MethodGet, "/admin/v1/keys", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// SetAPIKeyStatus enables or disables a key.
func (c *Client) SetAPIKeyStatus(ctx context.Context, keyID string, enabled bool) (*apiv1.APIKeyResponse, error) {
	out := &apiv1.APIKeyResponse{}
	path := "/admin/v1/keys/" + url.PathEscape(keyID) + "/status"
	body := &apiv1.UpdateAPIKeyStatusRequest{Enabled: enabled}
	if _, err := c.do(ctx, http.MethodPost, path, nil, nil, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func locationsPath(org string) string {
	return "/v1/orgs/" + url.PathEscape(org) + "/locations"
}

func locationPath(org, id string) string {
	return locationsPath(org) + "/" + url.PathEscape(id)
}

// do sends one request and decodes the envelope's data into target.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, hdr http.Header, body, target any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	c.addHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrRemoteUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	if err := parseResponse(resp, target); err != nil {
		return resp, err
	}
	return resp, nil
}

// addHeaders adds authentication and common headers.
func (c *Client) addHeaders(req *http.Request) {
	if c.apiKeyID != "" && c.apiKey != "" {
		req.Header.Set(apiv1.HeaderAPIKeyID, c.apiKeyID)
		req.Header.Set(apiv1.HeaderAPIKey, c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
}

// parseResponse decodes the envelope. Error answers become domain errors.
func parseResponse(resp *http.Response, target any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrRemoteUnavailable.WithCause(fmt.Errorf("read response: %w", err))
	}

	var env apiv1.RawResponse
	envErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, env, envErr, raw)
	}

	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if envErr != nil {
		return fmt.Errorf("parse response: %w", envErr)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}

func statusError(status int, env apiv1.RawResponse, envErr error, raw []byte) error {
	var serverErr *domain.DomainError
	switch {
	case envErr == nil && env.Code != "":
		if known := domain.LookupError(env.Code); known != nil {
			serverErr = known.WithDetails(detailText(env))
		} else {
			serverErr = domain.NewDomainError(env.Code, env.Message)
		}
	default:
		text := strings.TrimSpace(string(raw))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		if text == "" {
			text = http.StatusText(status)
		}
		serverErr = domain.ErrBadRequest.WithDetails(fmt.Sprintf("status %d: %s", status, text))
	}

	if status >= 500 || status == http.StatusTooManyRequests {
		return domain.ErrRemoteUnavailable.
			WithDetails(fmt.Sprintf("status %d", status)).
			WithCause(serverErr)
	}
	return serverErr
}

func detailText(env apiv1.RawResponse) string {
	if env.Details == nil {
		return env.Message
	}
	if s, ok := env.Details.(string); ok {
		return s
	}
	return fmt.Sprintf("%s (%v)", env.Message, env.Details)
}
