// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	RequestIDKey LogContextKey = "request_id"
	UserIDKey    LogContextKey = "user_id"
	TraceIDKey   LogContextKey = "trace_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok && rid != "" {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if uid, ok := ctx.Value(UserIDKey).(string); ok && uid != "" {
		r.AddAttrs(slog.String("user_id", uid))
	}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok && tid != "" {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	GlobalLogger = NewLogger(os.Getenv("APP_ENV"))
}

// NewLogger builds a context-aware logger: JSON in production, text otherwise.
func NewLogger(env string) *Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(&ctxHandler{handler})}
}

// Configure replaces the global logger for the given environment.
func Configure(env string) {
	GlobalLogger = NewLogger(env)
	slog.SetDefault(GlobalLogger.Logger)
}

// WithUserID returns a new context carrying the user id for log records.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRequestID returns a new context carrying the request id for log records.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithTraceID returns a new context carrying the trace id for log records.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ComponentLogger tags every record with the component that emitted it.
type ComponentLogger struct {
	component string
	logger    *Logger
}

// For returns a ComponentLogger bound to the global logger.
func For(component string) *ComponentLogger {
	return &ComponentLogger{component: component, logger: GlobalLogger}
}

func (l *ComponentLogger) attrs(fields map[string]any) []any {
	attrs := []any{slog.String("component", l.component)}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// Info logs an informational event.
func (l *ComponentLogger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.logger.InfoContext(ctx, msg, l.attrs(fields)...)
}

// Warn logs a recoverable problem.
func (l *ComponentLogger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.logger.WarnContext(ctx, msg, l.attrs(fields)...)
}

// Error logs a failure with its error.
func (l *ComponentLogger) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	attrs := l.attrs(fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.ErrorContext(ctx, msg, attrs...)
}

// WSLogger provides structured logging for WebSocket operations.
type WSLogger struct {
	hubName string
	logger  *Logger
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hubName string) *WSLogger {
	return &WSLogger{
		hubName: hubName,
		logger:  GlobalLogger,
	}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, userID string) {
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hubName),
		slog.String("user_id", userID),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID string, reason string) {
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hubName),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID string, err error, eventType string) {
	l.logger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hubName),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogLifecycle logs a hub or subscription lifecycle event.
func (l *WSLogger) LogLifecycle(ctx context.Context, event string, fields map[string]any) {
	attrs := []any{
		slog.String("hub", l.hubName),
		slog.String("event", event),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "websocket lifecycle", attrs...)
}
