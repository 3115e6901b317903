// Package signer mints and verifies short-lived signed download tokens.
//
// A token is b64url_nopad(payload_json) + "." + b64url_nopad(hmac_sha256(...)),
// where the HMAC runs over the base64 *text* of the payload, not the raw
// JSON bytes. This is intentionally not a JWT: there is no header segment
// and no algorithm negotiation, since the service only ever signs with one
// key and one scheme.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/vaultfs/internal/apperr"
)

// MinTTL and MaxTTL bound the caller-provided ttl_seconds in ClampTTL.
const (
	MinTTL     = 30 * time.Second
	MaxTTL     = 3600 * time.Second
	DefaultTTL = 300 * time.Second
)

// Payload is the signed claim set: one tenant, one file, one expiry.
type Payload struct {
	TenantID string `json:"tenant_id"`
	FileID   string `json:"file_id"`
	ExpMs    int64  `json:"exp_ms"`
}

// b64 decodes strictly: a token whose unused trailing bits were altered is
// rejected rather than decoded to the same bytes.
var b64 = base64.RawURLEncoding.Strict()

// Sign mints a token granting read access to (tenant, fileID) until exp.
func Sign(key []byte, tenantID, fileID string, exp time.Time) (string, error) {
	p := Payload{TenantID: tenantID, FileID: fileID, ExpMs: exp.UnixMilli()}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("signer: marshal payload: %w", err)
	}
	payloadB64 := b64.EncodeToString(raw)
	sig := sign(key, payloadB64)
	return payloadB64 + "." + b64.EncodeToString(sig), nil
}

// Verify validates token against key and the current time, returning the
// decoded payload. Any structural defect, signature mismatch, or expiry
// in the past yields apperr.Unauthorized.
func Verify(key []byte, token string, now time.Time) (*Payload, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, apperr.Unauthorized("signer: malformed token")
	}
	payloadB64, sigB64 := parts[0], parts[1]

	sig, err := b64.DecodeString(sigB64)
	if err != nil {
		return nil, apperr.Unauthorized("signer: malformed signature")
	}
	want := sign(key, payloadB64)
	if !hmac.Equal(sig, want) {
		return nil, apperr.Unauthorized("signer: signature mismatch")
	}

	raw, err := b64.DecodeString(payloadB64)
	if err != nil {
		return nil, apperr.Unauthorized("signer: malformed payload")
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperr.Unauthorized("signer: malformed payload json")
	}
	if now.UnixMilli() >= p.ExpMs {
		return nil, apperr.Unauthorized("signer: token expired")
	}
	return &p, nil
}

// ClampTTL clamps a caller-supplied ttl in seconds to [MinTTL, MaxTTL],
// substituting DefaultTTL for zero/negative input.
func ClampTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultTTL
	}
	d := time.Duration(seconds) * time.Second
	if d < MinTTL {
		return MinTTL
	}
	if d > MaxTTL {
		return MaxTTL
	}
	return d
}

func sign(key []byte, payloadB64 string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payloadB64))
	return mac.Sum(nil)
}
