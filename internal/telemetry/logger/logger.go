package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output is the output writer (defaults to os.Stderr).
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// globalLevel holds the current log level for dynamic adjustment.
var globalLevel = new(slog.LevelVar)

// New creates a logger. The level is shared by every logger created by
// this package so SetLevel affects them all.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	globalLevel.Set(level)

	opts := &slog.HandlerOptions{
		Level:     globalLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		handler = slog.NewTextHandler(output, opts)
	case "", "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(&contextHandler{Handler: handler}), nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// SetLevel changes the level of every logger created by New.
func SetLevel(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	globalLevel.Set(l)
	return nil
}

// GetLevel returns the current log level as a string.
func GetLevel() string {
	switch globalLevel.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel converts a level name to slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// contextHandler adds the request ID carried by the context.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
