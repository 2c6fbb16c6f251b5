// Package logger defines the structured logging interface used across the
// service. The production implementation is zap-backed and lives in the
// monitoring infrastructure package; this package only carries the contract
// so domain and application code never import a logging library directly.
package logger

import (
	"context"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger is the structured, context-aware logging interface.
type Logger interface {
	// Debug logs a debug message.
	Debug(ctx context.Context, msg string, fields ...Fields)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, fields ...Fields)

	// Warn logs a warning message.
	Warn(ctx context.Context, msg string, fields ...Fields)

	// Error logs an error message with its cause.
	Error(ctx context.Context, msg string, err error, fields ...Fields)

	// Fatal logs a fatal message and terminates the process.
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields returns a logger that attaches fields to every entry.
	WithFields(fields Fields) Logger

	// WithComponent returns a logger scoped to a named component.
	WithComponent(component string) Logger
}
