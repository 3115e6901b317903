package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7_VersionAndUniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := gen()
		u, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("iteration %d: %q is not a UUID: %v", i, id, err)
		}
		if u.Version() != 7 {
			t.Fatalf("version = %d, want 7", u.Version())
		}
		if seen[id] {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		seen[id] = true
	}
}

func TestUploadName_Format(t *testing.T) {
	name := UploadName()()
	if !strings.HasPrefix(name, "upload-") || !strings.HasSuffix(name, ".bin") {
		t.Fatalf("upload name = %q, want upload-<uuid>.bin", name)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(name, "upload-"), ".bin")
	if _, err := uuid.Parse(inner); err != nil {
		t.Fatalf("inner id %q is not a UUID: %v", inner, err)
	}
}

func TestAuditID_Format(t *testing.T) {
	id := AuditID()()
	if !strings.HasPrefix(id, "audit_") {
		t.Fatalf("audit id = %q, want audit_ prefix", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "audit_")); err != nil {
		t.Fatalf("inner id is not a UUID: %v", err)
	}
}

func TestPrefixedSuffixed_Compose(t *testing.T) {
	gen := Suffixed(".tmp", Prefixed("x-", func() string { return "id" }))
	if got := gen(); got != "x-id.tmp" {
		t.Fatalf("composed id = %q, want x-id.tmp", got)
	}
}

func TestDefault_IsUUID(t *testing.T) {
	if _, err := uuid.Parse(Default()); err != nil {
		t.Fatalf("Default: %v", err)
	}
}
