// Package main provides the entry point for fidloc-server.
//
// The server is the remote document store for field locations:
//
//   - HTTP/HTTPS JSON API for organization-scoped location collections
//   - Idempotent creates so queued client writes are never duplicated
//   - API key administration per organization
//   - Prometheus metrics on /metrics
//
// Usage:
//
//	fidloc-server [flags]
//	fidloc-server -config /etc/fidloc/server.yaml
//
// On first start with security.bootstrap_org set and an empty store, the
// server creates an admin key for that organization and prints its
// secret once.
package main
