package command

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/remote"
)

// pendingStore is the pending queue as commands see it: the local queue,
// or the queue of a running agent reached over its control API.
type pendingStore interface {
	EnqueueRecord(ctx context.Context, rec *domain.PendingRecord) error
	List(ctx context.Context) ([]*domain.PendingRecord, error)
	Get(ctx context.Context, pendingID string) (*domain.PendingRecord, error)
	Remove(ctx context.Context, pendingID string) error
}

// agentEndpoint tells other commands where a running agent serves its
// queue. The agent writes it next to data_dir and removes it on exit.
type agentEndpoint struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
	PID   int    `json:"pid"`
}

func agentEndpointPath(dataDir string) string {
	return filepath.Clean(dataDir) + ".agent.json"
}

func newAgentToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// writeAgentEndpoint replaces the endpoint file atomically. The token
// grants queue access, so the file is private to the user.
func writeAgentEndpoint(path string, ep agentEndpoint) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("write agent endpoint: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".agent-*.json")
	if err != nil {
		return fmt.Errorf("write agent endpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write agent endpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write agent endpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write agent endpoint: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func readAgentEndpoint(path string) (*agentEndpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ep agentEndpoint
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if ep.Addr == "" {
		return nil, fmt.Errorf("parse %s: no address", path)
	}
	return &ep, nil
}

// Agent returns a client for the agent serving this data_dir, or nil
// when no agent answers. The answer is cached for the invocation.
func (r *Runtime) Agent(ctx context.Context) *remote.AgentClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.agentChecked {
		return r.agent
	}
	r.agentChecked = true
	if r.Config.DataDir == "" {
		return nil
	}

	path := agentEndpointPath(r.Config.DataDir)
	ep, err := readAgentEndpoint(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.Logger.Warn("ignoring agent endpoint", "file", path, "error", err)
		}
		return nil
	}

	// A requested sync pass may outlast the store client's timeout; calls
	// are bounded by their contexts instead.
	client := remote.NewAgentClient(ep.Addr, ep.Token, remote.WithHTTPClient(&http.Client{}))
	pctx, cancel := context.WithTimeout(ctx, r.Config.Agent.ProbeTimeout)
	defer cancel()
	if _, err := client.Status(pctx); err != nil {
		r.Logger.Debug("agent not answering, using local queue", "addr", ep.Addr, "pid", ep.PID, "error", err)
		return nil
	}
	r.agent = client
	return r.agent
}

// Pending returns the queue commands should use: the local queue when
// this invocation already holds it, else a running agent's queue, else
// the local queue opened now.
func (r *Runtime) Pending(ctx context.Context) (pendingStore, error) {
	r.mu.Lock()
	q := r.queue
	r.mu.Unlock()
	if q != nil {
		return q, nil
	}

	if agent := r.Agent(ctx); agent != nil {
		return agent, nil
	}
	q, err := r.Queue(ctx)
	if err != nil {
		return nil, err
	}
	return q, nil
}
