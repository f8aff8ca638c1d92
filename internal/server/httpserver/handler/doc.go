// Package handler provides HTTP request handlers for fidloc-server.
//
// This package implements the HTTP API endpoints for the per-organization
// location collections, API key administration and health probes. All
// JSON responses use the envelope defined in api/v1.
package handler
