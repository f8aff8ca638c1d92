// Package config provides server configuration for fidloc-server.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, TLS pairs, paths)
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and FIDLOC_ environment variables.
package config
