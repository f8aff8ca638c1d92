package config

import "strings"

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg

	if sanitized.APIKey != "" {
		sanitized.APIKey = maskSecret(sanitized.APIKey)
	}
	if sanitized.Queue.Passphrase != "" {
		sanitized.Queue.Passphrase = maskSecret(sanitized.Queue.Passphrase)
	}

	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-6) + s[len(s)-2:]
}
