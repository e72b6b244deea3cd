// Package observability provides structured logging helpers for request-scoped
// logging across the assistant pipeline.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldThreadID is the field name for conversation thread ID.
	LogFieldThreadID = "thread_id"
	// LogFieldPaperID is the field name for paper ID.
	LogFieldPaperID = "paper_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldMessageLen is the field name for message length.
	LogFieldMessageLen = "message_length"
	// LogFieldAttempt is the field name for retry attempt count.
	LogFieldAttempt = "attempt"
)

// RequestContext represents the context for a single turn with structured logging.
type RequestContext struct {
	RequestID string
	ThreadID  string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewRequestContext creates a new request context with a generated request ID.
func NewRequestContext(logger *slog.Logger, threadID string) *RequestContext {
	return &RequestContext{
		RequestID: uuid.New().String()[:8],
		ThreadID:  threadID,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// DurationMs returns the elapsed time since the request started, in milliseconds.
func (r *RequestContext) DurationMs() int64 {
	return time.Since(r.StartTime).Milliseconds()
}

func (r *RequestContext) baseAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String(LogFieldRequestID, r.RequestID),
		slog.String(LogFieldThreadID, r.ThreadID),
	}
}

// Info logs an info message with the request's base attributes.
func (r *RequestContext) Info(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, append(r.baseAttrs(), attrs...)...)
}

// Debug logs a debug message with the request's base attributes.
func (r *RequestContext) Debug(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, append(r.baseAttrs(), attrs...)...)
}

// Warn logs a warning with the request's base attributes.
func (r *RequestContext) Warn(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, append(r.baseAttrs(), attrs...)...)
}

// Error logs an error with the request's base attributes.
func (r *RequestContext) Error(msg string, err error, attrs ...slog.Attr) {
	combined := r.baseAttrs()
	if err != nil {
		combined = append(combined, slog.String("error", err.Error()))
	}
	r.Logger.LogAttrs(context.Background(), slog.LevelError, msg, append(combined, attrs...)...)
}
