package logger

import (
	"log/slog"
	"strings"

	"github.com/fidloc/fidloc-go/internal/core/domain"
)

// Values with these prefixes are partially masked wherever they appear.
var sensitiveValuePrefixes = []string{
	domain.APIKeySecretPrefix,
}

// Non-empty string values under keys containing these fragments are
// replaced entirely.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"api_key",
	"credential",
	"authorization",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		for _, prefix := range sensitiveValuePrefixes {
			if strings.HasPrefix(v, prefix) {
				return slog.String(a.Key, maskValue(v, prefix))
			}
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskValue keeps the prefix and three characters at each end.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks a value that looks like an API key secret.
func RedactString(value string) string {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return maskValue(value, prefix)
		}
	}
	return value
}

// IsSensitiveKey reports whether a key name suggests credential content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
