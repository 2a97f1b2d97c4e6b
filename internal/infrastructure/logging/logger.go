// Package logging provides the zap-backed diagnostic sink consumed by
// the RPC framework. It implements the domain logger contract, mapping
// trace-level diagnostics to zap's debug level.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/piperpc/piperpc/internal/domain"
)

// Logger wraps zap.Logger behind the domain logger contract.
type Logger struct {
	logger *zap.Logger
}

// Fields carries structured key-value pairs attached to a diagnostic.
type Fields = domain.Fields

// LogLevel represents the log severity level.
type LogLevel string

// Available log levels. Trace maps to zap's debug level.
const (
	TraceLevel LogLevel = "trace"
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Config represents the logging configuration.
type Config struct {
	Level         LogLevel
	Development   bool
	OutputPaths   []string
	InitialFields Fields
}

// DefaultConfig returns a default configuration for the logger. Output
// goes to stderr so it never interleaves with a stdout-bound wire stream.
func DefaultConfig() Config {
	return Config{
		Level:       InfoLevel,
		Development: false,
		OutputPaths: []string{"stderr"},
	}
}

// DevelopmentConfig returns a development configuration for the logger.
func DevelopmentConfig() Config {
	return Config{
		Level:       TraceLevel,
		Development: true,
		OutputPaths: []string{"stderr"},
	}
}

// New creates a new logger with the given configuration.
func New(config Config) (*Logger, error) {
	var level zapcore.Level
	switch config.Level {
	case TraceLevel, DebugLevel:
		level = zapcore.DebugLevel
	case InfoLevel:
		level = zapcore.InfoLevel
	case WarnLevel:
		level = zapcore.WarnLevel
	case ErrorLevel:
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       config.Development,
		DisableCaller:     !config.Development,
		DisableStacktrace: !config.Development,
		Encoding:          "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      config.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if config.InitialFields != nil {
		zapConfig.InitialFields = make(map[string]interface{})
		for k, v := range config.InitialFields {
			zapConfig.InitialFields[k] = v
		}
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger: zapLogger}, nil
}

// NewDevelopment creates a new development logger.
func NewDevelopment() (*Logger, error) {
	return New(DevelopmentConfig())
}

// NewNop creates a logger that discards all diagnostics.
func NewNop() *Logger {
	return &Logger{logger: zap.NewNop()}
}

// With returns a logger with the given fields attached to every entry.
func (l *Logger) With(fields Fields) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(zapFields(fields)...)}
}

// Trace logs a message at trace (zap debug) level.
func (l *Logger) Trace(msg string, fields Fields) {
	l.logger.Debug(msg, zapFields(fields)...)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string, fields Fields) {
	l.logger.Info(msg, zapFields(fields)...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string, fields Fields) {
	l.logger.Warn(msg, zapFields(fields)...)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string, fields Fields) {
	l.logger.Error(msg, zapFields(fields)...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

func zapFields(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}
