// Package httpserver provides the HTTP/HTTPS server for fidloc-server.
//
// This package implements the external API using stdlib net/http:
//
//   - Location endpoints: /v1/orgs/{org}/locations, /v1/orgs/{org}/locations/{id}
//   - Admin endpoints: /admin/v1/keys
//   - Health endpoints: /health, /ready, /metrics
//
// Middleware: Recover, Metrics, RequestID, CORS, RateLimit, Audit, Auth.
package httpserver
