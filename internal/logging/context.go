package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	tenantIDKey contextKey = iota
	userIDKey
	requestIDKey
)

// WithTenant attaches tenant and user identity to the context for logging.
func WithTenant(ctx context.Context, tenantID, userID string) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return context.WithValue(ctx, userIDKey, userID)
}

// WithRequestID attaches a request identifier to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextFields extracts identity fields previously attached to ctx.
// Returns nil when nothing was attached.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}

	var fields []zap.Field
	if v, ok := ctx.Value(tenantIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("tenant_id", v))
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("user_id", v))
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	return fields
}
