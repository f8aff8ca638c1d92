package offline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
)

func newTestKV(t *testing.T) *storage.BadgerEngine {
	t.Helper()
	cfg := storage.DefaultKVConfig(t.TempDir())
	cfg.GCInterval = 0
	cfg.SyncWrites = false

	kv, err := storage.NewBadgerEngine(cfg, logger.Discard())
	if err != nil {
		t.Fatalf("NewBadgerEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func newTestQueue(t *testing.T, opts ...QueueOption) *Queue {
	t.Helper()
	opts = append([]QueueOption{WithQueueLogger(logger.Discard())}, opts...)
	return NewQueue(newTestKV(t), opts...)
}

func testLocation(name string) *domain.Location {
	return &domain.Location{
		Name:         name,
		Address:      "1 Main St",
		Latitude:     45.5,
		Longitude:    -122.6,
		LocationType: domain.LocationTypeGarage,
	}
}

type remoteCall struct {
	OrgID string
	Key   string
	Loc   *domain.Location
}

// fakeRemote records writes and fails those whose name is in failNames.
type fakeRemote struct {
	mu        sync.Mutex
	calls     []remoteCall
	stored    map[string]*domain.Location
	failNames map[string]error
	failAll   error
	hook      func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		stored:    make(map[string]*domain.Location),
		failNames: make(map[string]error),
	}
}

func (r *fakeRemote) CreateLocation(ctx context.Context, orgID string, loc *domain.Location, key string) (*domain.Location, error) {
	r.mu.Lock()
	hook := r.hook
	r.calls = append(r.calls, remoteCall{OrgID: orgID, Key: key, Loc: loc.Clone()})
	if r.failAll != nil {
		err := r.failAll
		r.mu.Unlock()
		return nil, err
	}
	if err, ok := r.failNames[loc.Name]; ok {
		r.mu.Unlock()
		return nil, err
	}
	if prev, ok := r.stored[key]; ok {
		r.mu.Unlock()
		return prev.Clone(), nil
	}
	out := loc.Clone()
	out.ID = "loc-" + key
	out.Stamp()
	r.stored[key] = out
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out.Clone(), nil
}

func (r *fakeRemote) Calls() []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]remoteCall(nil), r.calls...)
}

func (r *fakeRemote) StoredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored)
}

// fakeProber reports healthy while up is true.
type fakeProber struct {
	mu    sync.Mutex
	up    bool
	calls int
}

var errProbeDown = errors.New("connection refused")

func (p *fakeProber) Health(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if !p.up {
		return errProbeDown
	}
	return nil
}

func (p *fakeProber) Set(up bool) {
	p.mu.Lock()
	p.up = up
	p.mu.Unlock()
}

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// staticConn is a settable Connectivity for syncer and writer tests.
type staticConn struct {
	mu     sync.Mutex
	online bool
	sets   []bool
}

func (c *staticConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *staticConn) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
	c.sets = append(c.sets, online)
}
