package domain

// Fields carries structured key-value pairs attached to a diagnostic.
type Fields map[string]interface{}

// Logger is the diagnostic sink consumed by the framework. The zap-backed
// implementation lives under internal/infrastructure/logging; trace-level
// diagnostics map to its debug level.
type Logger interface {
	Trace(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// NopLogger discards all diagnostics.
type NopLogger struct{}

// Trace discards the diagnostic.
func (NopLogger) Trace(msg string, fields Fields) {}

// Info discards the diagnostic.
func (NopLogger) Info(msg string, fields Fields) {}

// Warn discards the diagnostic.
func (NopLogger) Warn(msg string, fields Fields) {}

// Error discards the diagnostic.
func (NopLogger) Error(msg string, fields Fields) {}
