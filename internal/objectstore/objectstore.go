// Package objectstore manages content-addressed blob files on disk, laid
// out under per-tenant directories with atomic publish via rename.
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/vaultfs/internal/horosafe"
)

// Store roots all blob and temp-upload paths under DataDir.
type Store struct {
	DataDir string
}

// New returns a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{DataDir: dataDir}
}

// TmpDir is the directory in-progress uploads are streamed into.
func (s *Store) TmpDir() string { return filepath.Join(s.DataDir, "tmp") }

// ObjectsDir is the root of all tenants' blob directories.
func (s *Store) ObjectsDir() string { return filepath.Join(s.DataDir, "objects") }

// TenantDir is one tenant's blob directory.
func (s *Store) TenantDir(tenant string) (string, error) {
	return horosafe.SafePath(s.ObjectsDir(), tenant)
}

// EnsureTmpDir creates the temp upload directory if missing.
func (s *Store) EnsureTmpDir() error {
	return os.MkdirAll(s.TmpDir(), 0o755)
}

// EnsureTenantDir creates the tenant's object directory if missing and
// returns its absolute path.
func (s *Store) EnsureTenantDir(tenant string) (string, error) {
	dir, err := s.TenantDir(tenant)
	if err != nil {
		return "", fmt.Errorf("objectstore: tenant dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("objectstore: mkdir tenant dir: %w", err)
	}
	return dir, nil
}

// NewTmpPath returns a fresh path under TmpDir for name (caller supplies a
// random/unique name, e.g. "upload-<uuid>.bin").
func (s *Store) NewTmpPath(name string) string {
	return filepath.Join(s.TmpDir(), name)
}

// PlainPath is the on-disk path for a tenant's plaintext blob.
func (s *Store) PlainPath(tenant, fileID string) (string, error) {
	dir, err := s.TenantDir(tenant)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileID), nil
}

// CipherPath is the on-disk path for a tenant's encrypted blob.
func (s *Store) CipherPath(tenant, fileID string) (string, error) {
	dir, err := s.TenantDir(tenant)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileID+".age"), nil
}

// RelPath returns path relative to DataDir using forward slashes, the form
// persisted as storage_path.
func (s *Store) RelPath(path string) (string, error) {
	rel, err := filepath.Rel(s.DataDir, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// AbsPath resolves a persisted storage_path back to an absolute path.
func (s *Store) AbsPath(relPath string) string {
	return filepath.Join(s.DataDir, filepath.FromSlash(relPath))
}

// Publish renames src (a temp file) into the tenant directory as the
// plaintext blob named fileID, returning the resulting absolute path.
func (s *Store) Publish(src, tenant, fileID string) (string, error) {
	dst, err := s.PlainPath(tenant, fileID)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("objectstore: publish rename: %w", err)
	}
	return dst, nil
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
