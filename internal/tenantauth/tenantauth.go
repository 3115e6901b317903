// Package tenantauth resolves request credentials into a (tenant, role,
// key_id) identity and enforces role gates. Two modes are supported,
// selected at startup: auth disabled (every request is an admin against a
// hinted or default tenant) and auth enabled (a static x-api-key table).
package tenantauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/kit"
)

// Role is one of reader, writer, admin, in ascending privilege order.
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
)

// rank orders roles for the "X-or-higher" gates.
var rank = map[Role]int{RoleReader: 1, RoleWriter: 2, RoleAdmin: 3}

// NormalizeRole lowercases role and maps anything outside
// {reader, writer, admin} to admin, a deliberate fail-open kept for
// compatibility with older key tables that carried free-form roles.
func NormalizeRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleReader:
		return RoleReader
	case RoleWriter:
		return RoleWriter
	default:
		return RoleAdmin
	}
}

// Key is one entry of the static API-key table (from API_KEYS_JSON).
type Key struct {
	Key      string `json:"key"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
}

// Identity is the resolved caller: tenant, role, and an audit-safe key id.
type Identity struct {
	TenantID string
	Role     Role
	KeyID    string
}

// Resolver maps request credentials to an Identity.
type Resolver struct {
	Enabled bool
	keys    map[string]Identity // raw key -> identity
}

// New builds a Resolver. keys is the parsed API_KEYS_JSON table; it is
// ignored when enabled is false.
func New(enabled bool, keys []Key) *Resolver {
	r := &Resolver{Enabled: enabled, keys: map[string]Identity{}}
	for _, k := range keys {
		if k.Key == "" || k.TenantID == "" {
			continue
		}
		r.keys[k.Key] = Identity{
			TenantID: k.TenantID,
			Role:     NormalizeRole(k.Role),
			KeyID:    keyID(k.Key),
		}
	}
	return r
}

// keyID is the first 8 bytes of SHA-256(raw key), hex-encoded — the value
// surfaced in audit records, never the raw key itself.
func keyID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// Resolve computes an Identity from the request. hint is the caller's
// tenant_id hint (a query param or multipart field) and is honored only
// when auth is disabled.
func (r *Resolver) Resolve(req *http.Request, hint string) (Identity, error) {
	if !r.Enabled {
		tenant := strings.TrimSpace(hint)
		if tenant == "" {
			tenant = "default"
		}
		return Identity{TenantID: tenant, Role: RoleAdmin, KeyID: "dev"}, nil
	}

	raw := req.Header.Get("x-api-key")
	if raw == "" {
		return Identity{}, apperr.Unauthorized("tenantauth: missing x-api-key")
	}
	id, ok := r.keys[raw]
	if !ok {
		return Identity{}, apperr.Unauthorized("tenantauth: unknown api key")
	}
	return id, nil
}

// WithIdentity injects id into ctx using the shared kit context keys.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = kit.WithTenantID(ctx, id.TenantID)
	ctx = kit.WithRole(ctx, string(id.Role))
	ctx = kit.WithKeyID(ctx, id.KeyID)
	return ctx
}

// FromContext reconstructs the Identity stored by WithIdentity.
func FromContext(ctx context.Context) Identity {
	return Identity{
		TenantID: kit.GetTenantID(ctx),
		Role:     Role(kit.GetRole(ctx)),
		KeyID:    kit.GetKeyID(ctx),
	}
}

// RequireRole enforces that the identity in ctx is at least min. Returns
// apperr.Forbidden if not.
func RequireRole(ctx context.Context, min Role) error {
	id := FromContext(ctx)
	if rank[id.Role] < rank[min] {
		return apperr.Forbidden("tenantauth: requires " + string(min) + " role")
	}
	return nil
}
