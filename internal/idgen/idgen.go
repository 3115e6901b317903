// Package idgen mints the identifier strings the service hands out:
// audit entry ids ("audit_<uuid>") and temp-upload file names
// ("upload-<uuid>.bin"). Generators compose, so the ID strategy stays a
// startup-time decision rather than a compile-time one.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
// Time-sortable, so audit ids and temp-upload files list in creation
// order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID from gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string { return prefix + gen() }
}

// Suffixed appends a fixed suffix to every ID from gen.
func Suffixed(suffix string, gen Generator) Generator {
	return func() string { return gen() + suffix }
}

// UploadName mints the names in-progress uploads are staged under in the
// tmp directory: upload-<uuid>.bin.
func UploadName() Generator {
	return Suffixed(".bin", Prefixed("upload-", UUIDv7()))
}

// AuditID mints audit log entry ids: audit_<uuid>.
func AuditID() Generator {
	return Prefixed("audit_", UUIDv7())
}

// Default is the bare service-wide generator. Type-scoped ids compose
// Prefixed/Suffixed on top of it.
var Default Generator = UUIDv7()
