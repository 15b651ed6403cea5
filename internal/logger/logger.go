// Package logger provides structured logging built on log/slog with
// OpenTelemetry trace correlation.
package logger

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Level represents the logging level.
type Level slog.Level

// Logging levels.
const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// LoggerInterface is the logging contract injected into services.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	With(args ...any) LoggerInterface
}

// Logger wraps slog.Logger and enriches records with the active trace ID.
type Logger struct {
	handler *slog.Logger
}

// Ensure Logger implements LoggerInterface.
var _ LoggerInterface = (*Logger)(nil)

// New creates a Logger writing JSON records to w.
// replaceAttr may be nil; it is passed through to slog for attr rewriting.
func New(w io.Writer, minLevel Level, serviceName string, replaceAttr func(groups []string, a slog.Attr) slog.Attr) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       slog.Level(minLevel),
		ReplaceAttr: replaceAttr,
	})

	l := slog.New(handler)
	if serviceName != "" {
		l = l.With("service", serviceName)
	}

	return &Logger{handler: l}
}

// With returns a child logger with the given attributes attached.
func (l *Logger) With(args ...any) LoggerInterface {
	return &Logger{handler: l.handler.With(args...)}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		args = append(args,
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
		)
	}
	l.handler.Log(ctx, level, msg, args...)
}
