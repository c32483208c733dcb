// Package observability carries request-scoped logging context across layers.
package observability

import (
	"context"
	"log/slog"
)

type loggerContextKey struct{}

type requestIDContextKey struct{}

// ContextWithLogger attaches a logger to the context. Nil loggers are ignored.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// LoggerFromContext returns the request-scoped logger, falling back to the
// process default when the context carries none.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if lg, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && lg != nil {
			return lg
		}
	}
	return slog.Default()
}

// ContextWithRequestID stores the HTTP request id so deeper layers can
// correlate their logs with the originating request.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext retrieves the request id, or "" when none is present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDContextKey{}).(string)
	return rid
}
