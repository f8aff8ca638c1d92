package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// Agent keeps the queue draining in the background: it runs the
// monitor, starts a sync pass on every reconnect and on Trigger, and
// optionally on a fixed interval.
type Agent struct {
	monitor *Monitor
	syncer  *Syncer
	logger  *slog.Logger

	syncInterval atomic.Int64
	intervalCh   chan struct{}
	trigger      chan struct{}

	metricsAddr    string
	metricsHandler http.Handler
	onResult       func(SyncResult, error)

	controlAddr  string
	controlToken string
	onControl    func(addr string) error

	running atomic.Bool
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithSyncInterval enables periodic passes. Zero disables them.
func WithSyncInterval(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.syncInterval.Store(int64(d))
		}
	}
}

// WithAgentLogger sets the logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = l
	}
}

// WithMetricsServer serves h on addr while the agent runs.
func WithMetricsServer(addr string, h http.Handler) AgentOption {
	return func(a *Agent) {
		a.metricsAddr = addr
		a.metricsHandler = h
	}
}

// WithControlServer serves the control API on addr while the agent
// runs. Requests must carry token. onReady, if set, receives the bound
// address before any pass runs; an error from it stops the agent.
func WithControlServer(addr, token string, onReady func(addr string) error) AgentOption {
	return func(a *Agent) {
		a.controlAddr = addr
		a.controlToken = token
		a.onControl = onReady
	}
}

// WithResultHook is called after every pass the agent runs.
func WithResultHook(fn func(SyncResult, error)) AgentOption {
	return func(a *Agent) {
		a.onResult = fn
	}
}

// NewAgent wires the monitor's reconnect event to a sync pass.
func NewAgent(m *Monitor, s *Syncer, opts ...AgentOption) *Agent {
	a := &Agent{
		monitor:    m,
		syncer:     s,
		logger:     slog.Default(),
		intervalCh: make(chan struct{}, 1),
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}

	m.OnOnline(func() {
		a.logger.Info("back online, syncing queue")
		a.Trigger()
	})
	m.OnOffline(func() {
		a.logger.Info("went offline, writes will be queued")
	})
	return a
}

// Trigger requests a sync pass. Requests made while one is pending are
// coalesced.
func (a *Agent) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// SetSyncInterval changes the periodic pass interval of a running agent.
// Zero disables periodic passes.
func (a *Agent) SetSyncInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	a.syncInterval.Store(int64(d))
	select {
	case a.intervalCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. It returns an error only when the
// agent cannot start.
func (a *Agent) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("offline: agent already running")
	}
	defer a.running.Store(false)

	// Listeners stop on cancel, so wait only after it.
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.metricsHandler != nil && a.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metricsHandler)
		addr, err := a.serve(ctx, &wg, "metrics", a.metricsAddr, mux)
		if err != nil {
			return err
		}
		a.logger.Info("serving agent metrics", "addr", addr)
	}

	if a.controlAddr != "" {
		h := NewControlHandler(ControlConfig{
			Queue:  a.syncer.queue,
			Sync:   a.SyncNow,
			Online: a.monitor.Online,
			Token:  a.controlToken,
			Logger: a.logger,
		})
		addr, err := a.serve(ctx, &wg, "control", a.controlAddr, h)
		if err != nil {
			return err
		}
		if a.onControl != nil {
			if err := a.onControl(addr); err != nil {
				return err
			}
		}
		a.logger.Info("serving agent control API", "addr", addr)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	a.logger.Info("sync agent started",
		"sync_interval", time.Duration(a.syncInterval.Load()))

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	resetTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d := time.Duration(a.syncInterval.Load()); d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	resetTicker()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("sync agent stopped")
			return nil
		case <-a.intervalCh:
			resetTicker()
		case <-a.trigger:
			a.pass(ctx)
		case <-tick:
			a.pass(ctx)
		}
	}
}

func (a *Agent) pass(ctx context.Context) {
	res, err := a.syncer.Sync(ctx)
	if err != nil && !errors.Is(err, domain.ErrSyncInProgress) && ctx.Err() == nil {
		a.logger.Error("sync pass failed", "error", err)
	}
	if a.onResult != nil {
		a.onResult(res, err)
	}
}

// SyncNow probes the remote and runs a pass on the caller's goroutine.
// It returns ErrSyncInProgress when the agent is already syncing.
func (a *Agent) SyncNow(ctx context.Context) (SyncResult, error) {
	a.monitor.Check(ctx)
	res, err := a.syncer.Sync(ctx)
	if a.onResult != nil {
		a.onResult(res, err)
	}
	return res, err
}

// serve binds addr, serves h until ctx ends and returns the bound address.
func (a *Agent) serve(ctx context.Context, wg *sync.WaitGroup, name, addr string, h http.Handler) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("offline: %s listener: %w", name, err)
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("agent listener failed", "listener", name, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return ln.Addr().String(), nil
}
