// Package kit holds the request-scoped context keys shared between the
// middleware layer and the handlers: caller identity (tenant, role, key id)
// and request tracing.
package kit

import "context"

type contextKey string

const (
	RequestIDKey contextKey = "kit_request_id"
	TraceIDKey   contextKey = "kit_trace_id"
	RoleKey      contextKey = "kit_role"
	TenantIDKey  contextKey = "kit_tenant_id"
	KeyIDKey     contextKey = "kit_key_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}

func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(TenantIDKey).(string)
	return v
}

func WithKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, KeyIDKey, id)
}
func GetKeyID(ctx context.Context) string {
	v, _ := ctx.Value(KeyIDKey).(string)
	return v
}
