package offline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// maxControlBody bounds control request bodies.
const maxControlBody = 1 << 20

// ControlConfig configures the agent control API.
type ControlConfig struct {
	// Queue is the queue the agent owns.
	Queue *Queue
	// Sync runs one pass on request.
	Sync func(ctx context.Context) (SyncResult, error)
	// Online reports the monitor state. Nil means always online.
	Online func() bool
	// Token must be presented in X-Agent-Token. Empty disables the check.
	Token  string
	Logger *slog.Logger
}

// NewControlHandler serves the queue of a running agent to local
// clients, which cannot open the queue themselves while the agent holds
// its lock:
//
//	GET    /v1/agent            status
//	GET    /v1/queue            list pending records
//	POST   /v1/queue            stage a pending record
//	GET    /v1/queue/{id}       one pending record
//	DELETE /v1/queue/{id}       drop a pending record
//	POST   /v1/queue/sync       run a sync pass now
func NewControlHandler(cfg ControlConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &control{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/agent", c.handleStatus)
	mux.HandleFunc("GET /v1/queue", c.handleList)
	mux.HandleFunc("POST /v1/queue", c.handleEnqueue)
	mux.HandleFunc("POST /v1/queue/sync", c.handleSync)
	mux.HandleFunc("GET /v1/queue/{id}", c.handleGet)
	mux.HandleFunc("DELETE /v1/queue/{id}", c.handleRemove)
	return c.requireToken(mux)
}

type control struct {
	cfg ControlConfig
}

func (c *control) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.cfg.Token != "" {
			got := r.Header.Get(apiv1.HeaderAgentToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(c.cfg.Token)) != 1 {
				c.writeError(w, r, domain.ErrAgentToken)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (c *control) handleStatus(w http.ResponseWriter, r *http.Request) {
	n, err := c.cfg.Queue.Len(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	online := true
	if c.cfg.Online != nil {
		online = c.cfg.Online()
	}
	c.writeJSON(w, r, http.StatusOK, apiv1.AgentStatusResponse{
		Online:  online,
		Pending: n,
		PID:     os.Getpid(),
	})
}

func (c *control) handleList(w http.ResponseWriter, r *http.Request) {
	pending, err := c.cfg.Queue.List(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*domain.PendingRecord{}
	}
	c.writeJSON(w, r, http.StatusOK, apiv1.ListPendingResponse{Items: pending, Total: len(pending)})
}

func (c *control) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxControlBody)
	var rec domain.PendingRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		c.writeError(w, r, domain.ErrBadRequest.WithDetails(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	rec.Location.Normalize()
	if err := rec.Location.Validate(); err != nil {
		c.writeError(w, r, err)
		return
	}
	if err := c.cfg.Queue.EnqueueRecord(r.Context(), &rec); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, r, http.StatusCreated, &rec)
}

func (c *control) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := c.cfg.Queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, r, http.StatusOK, rec)
}

func (c *control) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := c.cfg.Queue.Remove(r.Context(), r.PathValue("id")); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *control) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := c.cfg.Sync(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, r, http.StatusOK, apiv1.SyncResultResponse{
		Synced:     res.Synced,
		Failed:     res.Failed,
		Remaining:  res.Remaining,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func (c *control) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiv1.NewResponse(r.Header.Get(apiv1.HeaderRequestID), data)); err != nil {
		c.cfg.Logger.Error("failed to encode control response", "error", err)
	}
}

func (c *control) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		de = domain.ErrInternalServer
	}
	status := domain.HTTPStatus(de.Code)
	if status >= http.StatusInternalServerError {
		c.cfg.Logger.Error("control request failed", "path", r.URL.Path, "code", de.Code, "error", err)
	}

	var details any
	if de.Details != "" {
		details = de.Details
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(apiv1.HeaderErrorCode, de.Code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiv1.NewErrorResponse(r.Header.Get(apiv1.HeaderRequestID), de.Code, de.Message, details))
}
