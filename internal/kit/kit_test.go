package kit

import (
	"context"
	"testing"
)

func TestContext_Identity(t *testing.T) {
	ctx := context.Background()

	ctx = WithTenantID(ctx, "acme")
	ctx = WithRole(ctx, "writer")
	ctx = WithKeyID(ctx, "deadbeefdeadbeef")

	if v := GetTenantID(ctx); v != "acme" {
		t.Fatalf("tenant_id: got %q", v)
	}
	if v := GetRole(ctx); v != "writer" {
		t.Fatalf("role: got %q", v)
	}
	if v := GetKeyID(ctx); v != "deadbeefdeadbeef" {
		t.Fatalf("key_id: got %q", v)
	}
}

func TestContext_RequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_abc")
	if v := GetRequestID(ctx); v != "req_abc" {
		t.Fatalf("request_id: got %q", v)
	}
}

func TestContext_TraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trc_xyz")
	if v := GetTraceID(ctx); v != "trc_xyz" {
		t.Fatalf("trace_id: got %q", v)
	}
}

func TestContext_EmptyDefaults(t *testing.T) {
	ctx := context.Background()
	if v := GetTenantID(ctx); v != "" {
		t.Fatalf("tenant_id default: got %q", v)
	}
	if v := GetRole(ctx); v != "" {
		t.Fatalf("role default: got %q", v)
	}
	if v := GetRequestID(ctx); v != "" {
		t.Fatalf("request_id default: got %q", v)
	}
	if v := GetTraceID(ctx); v != "" {
		t.Fatalf("trace_id default: got %q", v)
	}
}
