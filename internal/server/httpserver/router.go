package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/server/httpserver/handler"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// LocationService handles the location collections.
	LocationService *service.LocationService

	// AuthService handles authentication and API key operations.
	AuthService *service.AuthService

	// Store backs the readiness probe.
	Store handler.Pinger

	// Metrics records request metrics. May be nil.
	Metrics *metric.ServerMetrics

	// MetricsHandler serves /metrics. Nil disables the endpoint.
	MetricsHandler http.Handler

	// Logger for request logging.
	Logger *slog.Logger

	// TrustedProxies lists the IPs/CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts no proxy.
	TrustedProxies []string

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// MetricsAuthRequired indicates if /metrics endpoint requires authentication.
	MetricsAuthRequired bool

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// GlobalRateLimit is the global rate limit per IP (requests/second).
	GlobalRateLimit int

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.LocationService, cfg.AuthService, cfg.Store, log)

	middlewareCfg := &MiddlewareConfig{
		AuthService: cfg.AuthService,
		Metrics:     cfg.Metrics,
		Logger:      log,
	}

	// guarded builds the chain shared by authenticated groups:
	// RequestID -> [extra] -> RateLimit -> Audit -> auth -> Handler
	guarded := func(auth Middleware, extra ...Middleware) http.Handler {
		mws := append([]Middleware{RequestID()}, extra...)
		if cfg.GlobalRateLimit > 0 {
			mws = append(mws, RateLimit(cfg.GlobalRateLimit))
		}
		if cfg.EnableAudit {
			mws = append(mws, Audit(log))
		}
		mws = append(mws, auth)
		return Chain(h, mws...)
	}

	mux := http.NewServeMux()

	// Health endpoints - no authentication required
	public := Chain(h, RequestID(), CORS(cfg.CORSAllowedOrigins))
	mux.Handle("GET /health", public)
	mux.Handle("GET /ready", public)

	// Metrics endpoint - configurable authentication
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", Chain(cfg.MetricsHandler,
			RequestID(),
			MetricsAuth(middlewareCfg, cfg.MetricsAuthRequired),
		))
	}

	// Business API endpoints - require authentication
	business := guarded(Auth(middlewareCfg), CORS(cfg.CORSAllowedOrigins))
	mux.Handle("GET /v1/orgs/{org}/locations", business)
	mux.Handle("POST /v1/orgs/{org}/locations", business)
	mux.Handle("GET /v1/orgs/{org}/locations/{id}", business)
	mux.Handle("PUT /v1/orgs/{org}/locations/{id}", business)
	mux.Handle("DELETE /v1/orgs/{org}/locations/{id}", business)

	// Browser preflight for the business API
	mux.Handle("OPTIONS /v1/", Chain(http.NotFoundHandler(), CORS(cfg.CORSAllowedOrigins)))

	// Admin API endpoints - require admin role + optional network ACL
	admin := guarded(AdminAuth(middlewareCfg), NetworkACL(&NetworkACLConfig{
		AllowList: cfg.AdminAllowList,
		Logger:    log,
	}))
	mux.Handle("POST /admin/v1/keys", admin)
	mux.Handle("GET /admin/v1/keys", admin)
	mux.Handle("POST /admin/v1/keys/{key_id}/status", admin)

	// Metrics reads the pattern the mux stores on the request, so nothing
	// between them may replace the request.
	return Chain(mux, ClientIP(cfg.TrustedProxies, log), Metrics(cfg.Metrics), Recover(log))
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		GlobalRateLimit: 100, // requests/second per IP
		EnableAudit:     true,
	}
}
