// Package store is the SQL-backed metadata store: one row per live file,
// per tenant, with dedup, tombstoning, and extraction-state tracking.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/vaultfs/internal/dbopen"
)

// Store wraps the metadata database.
type Store struct {
	DB *sql.DB
}

// Open opens (and, if needed, creates) the metadata database at path,
// applying the schema and any pending column migrations.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func migrate(db *sql.DB) error {
	existing := map[string]bool{}
	rows, err := db.Query(`PRAGMA table_info(files)`)
	if err != nil {
		return fmt.Errorf("store: table_info: %w", err)
	}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("store: table_info scan: %w", err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if existing[m.column] {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("store: migrate %s: %w", m.column, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.DB.Close() }

// Reinit re-runs schema creation and column back-compat migration against
// the already-open database. Both are idempotent, so this is safe to call
// on every /readyz probe.
func (s *Store) Reinit() error {
	if _, err := s.DB.Exec(Schema); err != nil {
		return fmt.Errorf("store: reinit schema: %w", err)
	}
	return migrate(s.DB)
}

// File is one metadata record, as described in the data model: an entry is
// unique per (TenantID, FileID) among non-tombstoned rows.
type File struct {
	TenantID           string          `json:"tenant_id"`
	FileID             string          `json:"file_id"`
	SessionID          *string         `json:"session_id,omitempty"`
	Filename           string          `json:"filename"`
	Mime               *string         `json:"mime,omitempty"`
	Size               int64           `json:"size"`
	SHA256             string          `json:"sha256"`
	CreatedAtMs        int64           `json:"created_at_ms"`
	Source             *string         `json:"source,omitempty"`
	Encrypted          bool            `json:"encrypted"`
	StoragePath        string          `json:"storage_path"`
	DeletedAtMs        *int64          `json:"deleted_at_ms,omitempty"`
	ExtractStatus      *string         `json:"extract_status,omitempty"`
	ExtractUpdatedAtMs *int64          `json:"extract_updated_at_ms,omitempty"`
	ExtractAttempt     int             `json:"extract_attempt"`
	ExtractError       *string         `json:"extract_error,omitempty"`
	Annotations        json.RawMessage `json:"annotations,omitempty"`
}

const fileColumns = `tenant_id, file_id, session_id, filename, mime, size, sha256,
	created_at_ms, source, encrypted, storage_path, deleted_at_ms,
	extract_status, extract_updated_at_ms, extract_attempt, extract_error, annotations`

func scanFile(row interface {
	Scan(dest ...any) error
}) (*File, error) {
	f := &File{}
	var encrypted int
	var annotations sql.NullString
	if err := row.Scan(
		&f.TenantID, &f.FileID, &f.SessionID, &f.Filename, &f.Mime, &f.Size, &f.SHA256,
		&f.CreatedAtMs, &f.Source, &encrypted, &f.StoragePath, &f.DeletedAtMs,
		&f.ExtractStatus, &f.ExtractUpdatedAtMs, &f.ExtractAttempt, &f.ExtractError, &annotations,
	); err != nil {
		return nil, err
	}
	f.Encrypted = encrypted != 0
	if annotations.Valid {
		f.Annotations = json.RawMessage(annotations.String)
	}
	return f, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	return limit
}
