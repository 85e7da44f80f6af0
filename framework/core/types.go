package core

import "context"

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationIDHeader заголовок, в котором передается correlation ID
const CorrelationIDHeader = "X-Correlation-ID"

// WithCorrelationID возвращает контекст с correlation ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID возвращает correlation ID из контекста или пустую строку
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
