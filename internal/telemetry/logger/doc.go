// Package logger configures structured logging for the fidloc binaries.
//
// It builds a log/slog logger with JSON or text output, a process-wide
// level that can be changed at runtime, and a handler that masks API key
// secrets and values stored under credential-like keys before they reach
// the output. Request IDs placed in the context by the HTTP middleware are
// attached to every record logged with that context.
package logger
