package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every fidloc metric.
const Namespace = "fidloc"

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ServerMetrics are recorded by the document store process.
type ServerMetrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	locationWrites *prometheus.CounterVec
	authFailures   *prometheus.CounterVec
}

// NewServerMetrics creates and registers the server metric set.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		locationWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "location_writes_total",
			Help:      "Location writes by operation (create, replay, update, delete).",
		}, []string{"op"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected requests by error code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.requests, m.duration, m.locationWrites, m.authFailures)
	return m
}

// ObserveRequest records one HTTP request.
func (m *ServerMetrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, statusLabel(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// LocationWrite records a location write.
func (m *ServerMetrics) LocationWrite(op string) {
	if m == nil {
		return
	}
	m.locationWrites.WithLabelValues(op).Inc()
}

// AuthFailure records a rejected request.
func (m *ServerMetrics) AuthFailure(code string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(code).Inc()
}

// Sync pass outcomes.
const (
	PassCompleted = "completed"
	PassOffline   = "offline"
	PassBusy      = "busy"
	PassError     = "error"
)

// AgentMetrics are recorded by the field client.
type AgentMetrics struct {
	passes     *prometheus.CounterVec
	synced     prometheus.Counter
	failed     prometheus.Counter
	queued     prometheus.Counter
	queueDepth prometheus.Gauge
	online     prometheus.Gauge
	passTime   prometheus.Histogram
}

// NewAgentMetrics creates and registers the agent metric set.
func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Sync passes by outcome.",
		}, []string{"outcome"}),
		synced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "records_synced_total",
			Help:      "Pending records written to the remote store.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "records_failed_total",
			Help:      "Pending record write attempts that failed.",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Location writes staged in the local queue.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Pending records currently queued.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "agent",
			Name:      "online",
			Help:      "1 when the remote store is reachable.",
		}),
		passTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of completed sync passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	reg.MustRegister(m.passes, m.synced, m.failed, m.queued, m.queueDepth, m.online, m.passTime)
	return m
}

// ObservePass records the outcome of a sync pass.
func (m *AgentMetrics) ObservePass(outcome string, synced, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	if outcome != PassCompleted {
		return
	}
	m.synced.Add(float64(synced))
	m.failed.Add(float64(failed))
	m.passTime.Observe(elapsed.Seconds())
}

// Enqueued records a write staged locally.
func (m *AgentMetrics) Enqueued() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

// SetQueueDepth records the current queue length.
func (m *AgentMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetOnline records the connectivity state.
func (m *AgentMetrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
