package remote

import (
	"context"
	"net/http"
	"net/url"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// AgentClient talks to the control API of a running sync agent.
type AgentClient struct {
	c   *Client
	hdr http.Header
}

// NewAgentClient creates a client for the agent listening on addr.
func NewAgentClient(addr, token string, opts ...Option) *AgentClient {
	return &AgentClient{
		c:   New(addr, "", "", opts...),
		hdr: http.Header{apiv1.HeaderAgentToken: []string{token}},
	}
}

// Status returns the agent's connectivity and queue depth.
func (a *AgentClient) Status(ctx context.Context) (*apiv1.AgentStatusResponse, error) {
	out := &apiv1.AgentStatusResponse{}
	if _, err := a.c.do(ctx, http.MethodGet, "/v1/agent", nil, a.hdr, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnqueueRecord stages rec in the agent's queue.
func (a *AgentClient) EnqueueRecord(ctx context.Context, rec *domain.PendingRecord) error {
	_, err := a.c.do(ctx, http.MethodPost, "/v1/queue", nil, a.hdr, rec, nil)
	return err
}

// List returns the agent's pending records in insertion order.
func (a *AgentClient) List(ctx context.Context) ([]*domain.PendingRecord, error) {
	var out apiv1.ListPendingResponse
	if _, err := a.c.do(ctx, http.MethodGet, "/v1/queue", nil, a.hdr, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Get returns one pending record.
func (a *AgentClient) Get(ctx context.Context, pendingID string) (*domain.PendingRecord, error) {
	out := &domain.PendingRecord{}
	if _, err := a.c.do(ctx, http.MethodGet, pendingPath(pendingID), nil, a.hdr, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove drops a pending record without syncing it.
func (a *AgentClient) Remove(ctx context.Context, pendingID string) error {
	_, err := a.c.do(ctx, http.MethodDelete, pendingPath(pendingID), nil, a.hdr, nil, nil)
	return err
}

// Sync asks the agent to probe the remote and run a pass now.
func (a *AgentClient) Sync(ctx context.Context) (*apiv1.SyncResultResponse, error) {
	out := &apiv1.SyncResultResponse{}
	if _, err := a.c.do(ctx, http.MethodPost, "/v1/queue/sync", nil, a.hdr, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func pendingPath(id string) string {
	return "/v1/queue/" + url.PathEscape(id)
}
