package logging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace ID stored by WithTraceContext
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// AnalysisContext creates a logger context for one engine run
func AnalysisContext(symbol string, candles int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":  symbol,
		"candles": candles,
	}).WithComponent("engine")
}

// SignalContext creates a logger context for trading signals
func SignalContext(symbol, direction string, score float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":    symbol,
		"direction": direction,
		"score":     score,
	}).WithComponent("signal")
}

// MonitorContext creates a logger context for the monitoring loop
func MonitorContext(symbol string, interval time.Duration) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":   symbol,
		"interval": interval.String(),
	}).WithComponent("monitor")
}

// APIContext creates a logger context for API operations
func APIContext(method, path string, statusCode int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("api")
}

// WebSocketContext creates a logger context for WebSocket operations
func WebSocketContext(remote, stream string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"remote": remote,
		"stream": stream,
	}).WithComponent("websocket")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// CacheContext creates a logger context for cache operations
func CacheContext(operation, key string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"key":       key,
	}).WithComponent("cache")
}

// NotificationContext creates a logger context for notifications
func NotificationContext(provider, recipient string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"provider":  provider,
		"recipient": recipient,
	}).WithComponent("notification")
}
