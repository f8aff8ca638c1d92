// Package service provides the server-side domain services for FidLoc.
//
// This package contains:
//
//   - LocationService: location documents scoped by organization
//   - AuthService: API key authentication, authorization and rate limiting
//
// Services define the storage interfaces they need; storage.DocStore
// satisfies both.
package service
