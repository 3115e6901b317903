// Package ingest implements the commit half of the upload path: given a
// fully-hashed, already-streamed-to-disk temp file and the resolved tenant,
// it deduplicates, publishes the blob (optionally encrypting it), inserts
// metadata, and emits an audit event.
//
// The multipart field loop and identity resolution are driven by
// internal/httpapi, which owns the HTTP framing; this package only sees the
// result of that loop: a temp file plus its size and hash.
package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/audit"
	"github.com/hazyhaar/vaultfs/internal/cryptocodec"
	"github.com/hazyhaar/vaultfs/internal/objectstore"
	"github.com/hazyhaar/vaultfs/internal/store"
)

// Params describes one completed upload stream, ready to commit.
type Params struct {
	TenantID  string
	KeyID     string
	SessionID string
	Source    string
	Filename  string
	Mime      string
	TempPath  string
	SHA256    string // lowercase hex
	Size      int64
}

// Result is the observable outcome of a commit, win or dedup-hit alike.
type Result struct {
	FileID    string
	SHA256    string
	Size      int64
	Encrypted bool
}

// Pipeline commits completed upload streams to the metadata and object
// stores. Passphrase, when non-empty, enables at-rest encryption.
type Pipeline struct {
	Store      *store.Store
	Objects    *objectstore.Store
	Audit      *audit.Logger
	Passphrase string
}

// Commit finalizes the upload: dedup check against live records, blob
// publish (with encryption if configured), metadata insert, audit emit.
func (p *Pipeline) Commit(ctx context.Context, params Params) (*Result, error) {
	fileID := params.SHA256
	if fileID == "" {
		return nil, apperr.InvalidRequest("ingest: file field missing")
	}

	if _, err := p.Objects.EnsureTenantDir(params.TenantID); err != nil {
		return nil, apperr.Internal("ingest: ensure tenant dir", err)
	}

	existing, err := p.Store.LookupLive(ctx, params.TenantID, fileID)
	if err != nil {
		return nil, apperr.Internal("ingest: lookup live", err)
	}
	if existing != nil {
		os.Remove(params.TempPath) // best-effort: dedup hit needs no new blob
		p.emitAudit(params, fileID, true, existing.Size, existing.Encrypted)
		return &Result{
			FileID:    existing.FileID,
			SHA256:    existing.SHA256,
			Size:      existing.Size,
			Encrypted: existing.Encrypted,
		}, nil
	}

	encrypted := p.Passphrase != ""
	storagePath, err := p.publish(params.TenantID, fileID, params.TempPath, encrypted)
	if err != nil {
		return nil, apperr.Internal("ingest: publish blob", err)
	}

	now := time.Now().UnixMilli()
	rec := &store.File{
		TenantID:           params.TenantID,
		FileID:             fileID,
		SessionID:          optionalString(params.SessionID),
		Filename:           params.Filename,
		Mime:               optionalString(params.Mime),
		Size:               params.Size,
		SHA256:             fileID,
		CreatedAtMs:        now,
		Source:             optionalString(params.Source),
		Encrypted:          encrypted,
		StoragePath:        storagePath,
		ExtractStatus:      optionalString("pending"),
		ExtractUpdatedAtMs: &now,
		ExtractAttempt:     0,
	}

	if err := p.Store.InsertNew(ctx, rec); err != nil {
		if err == store.ErrExists {
			// Lost the dedup race: the concurrent winner already committed.
			// Re-read its row and report success as a dedup hit.
			winner, lookupErr := p.Store.LookupLive(ctx, params.TenantID, fileID)
			if lookupErr != nil || winner == nil {
				return nil, apperr.Internal("ingest: re-read after race", lookupErr)
			}
			p.emitAudit(params, fileID, true, winner.Size, winner.Encrypted)
			return &Result{
				FileID:    winner.FileID,
				SHA256:    winner.SHA256,
				Size:      winner.Size,
				Encrypted: winner.Encrypted,
			}, nil
		}
		return nil, apperr.Internal("ingest: insert metadata", err)
	}

	p.emitAudit(params, fileID, false, params.Size, encrypted)
	return &Result{FileID: fileID, SHA256: fileID, Size: params.Size, Encrypted: encrypted}, nil
}

// publish runs the two-step rename->encrypt->delete-plaintext sequence
// when encryption is configured, else a single rename. Returns the
// relative storage_path.
func (p *Pipeline) publish(tenant, fileID, tempPath string, encrypted bool) (string, error) {
	plainPath, err := p.Objects.Publish(tempPath, tenant, fileID)
	if err != nil {
		return "", fmt.Errorf("rename temp to plain: %w", err)
	}
	if !encrypted {
		return p.Objects.RelPath(plainPath)
	}

	cipherPath, err := p.Objects.CipherPath(tenant, fileID)
	if err != nil {
		return "", err
	}
	if err := encryptFile(p.Passphrase, plainPath, cipherPath); err != nil {
		return "", fmt.Errorf("encrypt plain to cipher: %w", err)
	}
	if err := os.Remove(plainPath); err != nil {
		return "", fmt.Errorf("delete plaintext after encrypt: %w", err)
	}
	return p.Objects.RelPath(cipherPath)
}

func encryptFile(passphrase, plainPath, cipherPath string) error {
	src, err := os.Open(plainPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(cipherPath)
	if err != nil {
		return err
	}
	if err := cryptocodec.EncryptStream(passphrase, dst, src); err != nil {
		dst.Close()
		os.Remove(cipherPath)
		return err
	}
	return dst.Close()
}

func (p *Pipeline) emitAudit(params Params, fileID string, dedup bool, size int64, encrypted bool) {
	p.Audit.Log(audit.Entry{
		Action:   "ingest",
		TenantID: params.TenantID,
		KeyID:    params.KeyID,
		FileID:   fileID,
		Extra: map[string]any{
			"dedup":     dedup,
			"size":      size,
			"encrypted": encrypted,
		},
	})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
