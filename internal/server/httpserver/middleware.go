package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	apiv1 "github.com/fidloc/fidloc-go/api/v1"
	"github.com/fidloc/fidloc-go/internal/core/domain"
	"github.com/fidloc/fidloc-go/internal/core/service"
	"github.com/fidloc/fidloc-go/internal/server/httpserver/handler"
	"github.com/fidloc/fidloc-go/internal/telemetry/logger"
	"github.com/fidloc/fidloc-go/internal/telemetry/metric"
	"github.com/fidloc/fidloc-go/pkg/cmap"
	"github.com/fidloc/fidloc-go/pkg/token"
)

type contextKey string

// ContextKeyStartTime is the context key for request start time.
const ContextKeyStartTime contextKey = "start_time"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is
// the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// MiddlewareConfig holds configuration for middlewares.
type MiddlewareConfig struct {
	AuthService *service.AuthService
	Metrics     *metric.ServerMetrics
	Logger      *slog.Logger
}

// RequestID adds a unique request ID to each request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(apiv1.HeaderRequestID)
			if requestID == "" || len(requestID) > 128 {
				if id, err := token.GenerateWithLength(16); err == nil {
					requestID = "req-" + id
				} else {
					requestID = "req-unknown"
				}
			}

			w.Header().Set(apiv1.HeaderRequestID, requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Auth creates an authentication middleware. The validated key is
// stored in the request context for the handlers.
func Auth(cfg *MiddlewareConfig) Middleware {
	return authenticate(cfg, "")
}

// AdminAuth is Auth restricted to keys with the admin role.
func AdminAuth(cfg *MiddlewareConfig) Middleware {
	return authenticate(cfg, domain.RoleAdmin)
}

func authenticate(cfg *MiddlewareConfig, role domain.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, keySecret := extractAPIKeyCredentials(r)
			if keyID == "" || keySecret == "" {
				rejectAuth(w, r, cfg.Metrics, domain.ErrAPIKeyMissing)
				return
			}

			apiKey, err := cfg.AuthService.ValidateAPIKey(r.Context(), &service.ValidateAPIKeyRequest{
				KeyID:     keyID,
				KeySecret: keySecret,
				ClientIP:  getClientIP(r),
			})
			if err != nil {
				rejectAuth(w, r, cfg.Metrics, err)
				return
			}

			if role != "" && apiKey.Role != role {
				rejectAuth(w, r, cfg.Metrics, domain.ErrPermissionDenied.WithDetails(string(role)+" role required"))
				return
			}

			if err := cfg.AuthService.CheckRateLimit(r.Context(), keyID, apiKey.RateLimit); err != nil {
				w.Header().Set("Retry-After", "1")
				rejectAuth(w, r, cfg.Metrics, err)
				return
			}

			recordCaller(r.Context(), apiKey)
			ctx := handler.WithAPIKey(r.Context(), apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsAuth protects the metrics endpoint when authRequired is set.
// Any active key with the metrics.read permission is accepted.
func MetricsAuth(cfg *MiddlewareConfig, authRequired bool) Middleware {
	return func(next http.Handler) http.Handler {
		if !authRequired {
			return next
		}
		return Auth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := handler.APIKeyFromContext(r.Context())
			if err := cfg.AuthService.CheckPermission(apiKey, domain.PermMetricsRead); err != nil {
				rejectAuth(w, r, cfg.Metrics, err)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// ipLimiter is the token bucket of one client IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// limiterIdleTTL is how long an idle client IP keeps its bucket.
const limiterIdleTTL = 3 * time.Minute

// RateLimit applies global rate limiting (per-IP).
func RateLimit(requestsPerSecond int) Middleware {
	limiters := cmap.New[*ipLimiter]()
	var lastPrune atomic.Int64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ip := getClientIP(r)

			l := limiters.GetOrCreate(ip, func() *ipLimiter {
				return &ipLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)}
			})
			l.lastSeen.Store(now.UnixNano())

			if last := lastPrune.Load(); now.UnixNano()-last > int64(limiterIdleTTL) &&
				lastPrune.CompareAndSwap(last, now.UnixNano()) {
				cutoff := now.Add(-limiterIdleTTL).UnixNano()
				limiters.DeleteFunc(func(_ string, v *ipLimiter) bool {
					return v.lastSeen.Load() < cutoff
				})
			}

			if !l.limiter.AllowN(now, 1) {
				w.Header().Set("Retry-After", "1")
				writeAuthError(w, r, domain.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// auditRecord collects what inner middlewares learn about the caller.
type auditRecord struct {
	apiKey *domain.APIKey
}

const contextKeyAudit contextKey = "audit"

// recordCaller notes the authenticated key for Audit, if it is active.
func recordCaller(ctx context.Context, apiKey *domain.APIKey) {
	if rec, ok := ctx.Value(contextKeyAudit).(*auditRecord); ok {
		rec.apiKey = apiKey
	}
}

// Audit logs request/response for audit trail.
func Audit(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &auditRecord{}
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), contextKeyAudit, rec)))

			startTime, ok := r.Context().Value(ContextKeyStartTime).(time.Time)
			if !ok {
				startTime = time.Now()
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(startTime).Milliseconds(),
				"client_ip", getClientIP(r),
			}
			if rec.apiKey != nil {
				attrs = append(attrs,
					"api_key_id", rec.apiKey.KeyID,
					"org", rec.apiKey.OrgID,
					"role", string(rec.apiKey.Role))
			}

			ctx := r.Context()
			switch {
			case wrapped.statusCode >= 500:
				log.ErrorContext(ctx, "request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.WarnContext(ctx, "request completed with client error", attrs...)
			default:
				log.InfoContext(ctx, "request completed", attrs...)
			}
		})
	}
}

// Metrics records request count and latency by route pattern.
// It must wrap the ServeMux so the matched pattern is known.
func Metrics(m *metric.ServerMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.ErrorContext(r.Context(), "panic recovered",
						"error", err,
						"path", r.URL.Path,
					)
					writeAuthError(w, r, domain.ErrInternalServer)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACLConfig holds configuration for network ACL middleware.
type NetworkACLConfig struct {
	// AllowList is the list of allowed IP/CIDR entries.
	// Empty list means no restriction.
	AllowList []string

	// Logger for logging denied requests.
	Logger *slog.Logger
}

// NetworkACL creates a middleware that checks client IP against an allowlist.
func NetworkACL(cfg *NetworkACLConfig) Middleware {
	networks := parseNetworks(cfg.AllowList, cfg.Logger)

	return func(next http.Handler) http.Handler {
		if len(networks) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			if containsIP(networks, clientIP) {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.Logger != nil {
				cfg.Logger.WarnContext(r.Context(), "request denied by network ACL",
					"client_ip", clientIP,
					"path", r.URL.Path,
				)
			}
			writeAuthError(w, r, domain.ErrPermissionDenied.WithDetails("client address not allowed"))
		})
	}
}

// extractAPIKeyCredentials extracts API key credentials from request headers.
// It supports three formats, in priority order:
//  1. Authorization: Bearer <key_id>:<key_secret>
//  2. X-API-Key: <key_id>:<key_secret>
//  3. X-API-Key-ID + X-API-Key headers
func extractAPIKeyCredentials(r *http.Request) (keyID, keySecret string) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		id, secret, ok := strings.Cut(strings.TrimPrefix(authHeader, "Bearer "), ":")
		if ok {
			return id, secret
		}
	}

	apiKey := r.Header.Get(apiv1.HeaderAPIKey)
	if id := r.Header.Get(apiv1.HeaderAPIKeyID); id != "" {
		return id, apiKey
	}
	if id, secret, ok := strings.Cut(apiKey, ":"); ok {
		return id, secret
	}
	return "", ""
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0 // Empty means allow all
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
					"Content-Type", "Authorization",
					apiv1.HeaderAPIKeyID, apiv1.HeaderAPIKey,
					apiv1.HeaderRequestID, apiv1.HeaderIdempotencyKey,
				}, ", "))
				w.Header().Set("Access-Control-Expose-Headers", strings.Join([]string{
					apiv1.HeaderRequestID, apiv1.HeaderErrorCode, apiv1.HeaderIdempotentReplay,
				}, ", "))
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(86400))
				w.Header().Add("Vary", "Origin")
			}

			// Handle preflight
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// rejectAuth counts an authentication failure and writes the error.
func rejectAuth(w http.ResponseWriter, r *http.Request, m *metric.ServerMetrics, err error) {
	code := domain.GetErrorCode(err)
	if code == "" {
		code = domain.ErrInternalServer.Code
	}
	m.AuthFailure(code)
	writeAuthError(w, r, err)
}

// writeAuthError writes an error envelope for a rejected request.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		de = domain.ErrInternalServer
	}
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(apiv1.HeaderErrorCode, de.Code)
	w.WriteHeader(domain.HTTPStatus(de.Code))

	var details any
	if de.Details != "" {
		details = de.Details
	}
	_ = json.NewEncoder(w).Encode(apiv1.NewErrorResponse(requestID, de.Code, de.Message, details))
}

const contextKeyClientIP contextKey = "client_ip"

// ClientIP resolves the caller's address once per request. Forwarding
// headers are honored only when the direct peer is in trustedProxies.
func ClientIP(trustedProxies []string, log *slog.Logger) Middleware {
	trusted := parseNetworks(trustedProxies, log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyClientIP, ip)))
		})
	}
}

// resolveClientIP walks X-Forwarded-For from the right, skipping trusted
// hops. The first untrusted hop is the client.
func resolveClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := remoteHost(r)
	if !containsIP(trusted, peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !containsIP(trusted, hop) {
				return hop
			}
			peer = hop
		}
		return peer
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

// getClientIP returns the address ClientIP resolved, or the peer address
// when the middleware is not installed.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(contextKeyClientIP).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	// net.SplitHostPort handles IPv6 addresses like [::1]:8080
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseNetworks turns IP and CIDR entries into networks. Invalid entries
// are logged and skipped.
func parseNetworks(entries []string, log *slog.Logger) []*net.IPNet {
	var networks []*net.IPNet
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 8 * net.IPv6len
				if ip.To4() != nil {
					ip, bits = ip.To4(), 8*net.IPv4len
				}
				networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
				continue
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			if log != nil {
				log.Warn("invalid network entry ignored", "entry", entry)
			}
			continue
		}
		networks = append(networks, ipNet)
	}
	return networks
}

func containsIP(networks []*net.IPNet, addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
