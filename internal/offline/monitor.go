package offline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

// Probe defaults.
const (
	DefaultProbeInterval = 10 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
)

// Prober checks that the remote store answers.
type Prober interface {
	Health(ctx context.Context) error
}

// State is the connectivity state tracked by a Monitor.
type State int32

const (
	StateUnknown State = iota
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Monitor tracks whether the remote store is reachable.
//
// The state starts unknown and is decided by the first probe; a first
// successful probe counts as an offline to online transition. OnOnline
// and OnOffline handlers run synchronously on the goroutine that caused
// the transition, so they should return quickly.
type Monitor struct {
	prober   Prober
	interval atomic.Int64
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metric.AgentMetrics

	mu        sync.Mutex
	state     State
	onOnline  []func()
	onOffline []func()

	reset chan struct{}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithProbeInterval sets the delay between probes.
func WithProbeInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval.Store(int64(d))
		}
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithMonitorMetrics exports the online gauge.
func WithMonitorMetrics(am *metric.AgentMetrics) MonitorOption {
	return func(m *Monitor) {
		m.metrics = am
	}
}

// NewMonitor creates a monitor for p.
func NewMonitor(p Prober, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober:  p,
		timeout: DefaultProbeTimeout,
		logger:  slog.Default(),
		reset:   make(chan struct{}, 1),
	}
	m.interval.Store(int64(DefaultProbeInterval))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports whether the last known state is online.
func (m *Monitor) Online() bool {
	return m.State() == StateOnline
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnOnline registers fn to run on every transition to online.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers fn to run on every transition to offline.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// SetOnline feeds an external signal, such as a failed remote write.
func (m *Monitor) SetOnline(online bool) {
	next := StateOffline
	if online {
		next = StateOnline
	}

	m.mu.Lock()
	prev := m.state
	m.state = next
	var handlers []func()
	if prev != next {
		if online {
			handlers = append(handlers, m.onOnline...)
		} else {
			handlers = append(handlers, m.onOffline...)
		}
	}
	m.mu.Unlock()

	m.metrics.SetOnline(online)
	if prev == next {
		return
	}

	if online {
		m.logger.Info("back online", "previous", prev.String())
	} else {
		m.logger.Warn("went offline", "previous", prev.String())
	}
	for _, fn := range handlers {
		fn()
	}
}

// Check probes once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Health(pctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; the failure says nothing about the remote.
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("health probe failed", "error", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// SetProbeInterval changes the delay between probes of a running monitor.
func (m *Monitor) SetProbeInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.interval.Store(int64(d))
	select {
	case m.reset <- struct{}{}:
	default:
	}
}

// Run probes immediately and then every probe interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	timer := time.NewTimer(time.Duration(m.interval.Load()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			m.Check(ctx)
		}
		timer.Reset(time.Duration(m.interval.Load()))
	}
}
