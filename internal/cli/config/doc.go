// Package config provides the fidloc client configuration.
//
//   - spec.go: Config struct (~/.fidloc/config.yaml)
//   - loader.go: loading from file, FIDLOC_ environment and flag overrides
//   - verify.go: validation
//   - sanitize.go: masking secrets for display
package config
