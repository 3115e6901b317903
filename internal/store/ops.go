package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/vaultfs/internal/dbopen"
)

// ErrExists is returned by InsertNew when a live row for the same
// (tenant_id, file_id) already exists.
var ErrExists = errors.New("store: live record already exists")

// LookupLive returns the live record for (tenant, fileID), or nil if none
// exists or the only match is tombstoned.
func (s *Store) LookupLive(ctx context.Context, tenant, fileID string) (*File, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE tenant_id = ? AND file_id = ? AND deleted_at_ms IS NULL`,
		tenant, fileID)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// InsertNew inserts a new record. CreatedAtMs, ExtractStatus, ExtractAttempt
// and ExtractUpdatedAtMs are expected to already be populated by the caller
// (the ingest pipeline sets them to now/"pending"/0/now respectively).
// Returns ErrExists if a live row for the same (tenant, file_id) already
// exists — the caller is expected to re-read the winning row on that race.
func (s *Store) InsertNew(ctx context.Context, f *File) error {
	encrypted := 0
	if f.Encrypted {
		encrypted = 1
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO files (tenant_id, file_id, session_id, filename, mime, size, sha256,
			created_at_ms, source, encrypted, storage_path, deleted_at_ms,
			extract_status, extract_updated_at_ms, extract_attempt, extract_error, annotations)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,NULL,?,?,?,?,?)`,
		f.TenantID, f.FileID, f.SessionID, f.Filename, f.Mime, f.Size, f.SHA256,
		f.CreatedAtMs, f.Source, encrypted, f.StoragePath,
		f.ExtractStatus, f.ExtractUpdatedAtMs, f.ExtractAttempt, f.ExtractError, f.Annotations,
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	return err
}

// ListFilter narrows List results. Zero values mean "unfiltered".
type ListFilter struct {
	SessionID     string
	Mime          string
	ExtractStatus string
	Q             string
}

// List returns live records for tenant matching filter, newest first.
func (s *Store) List(ctx context.Context, tenant string, filter ListFilter, limit int) ([]*File, error) {
	limit = clampLimit(limit, 50, 200)

	where := []string{"tenant_id = ?", "deleted_at_ms IS NULL"}
	args := []any{tenant}

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Mime != "" {
		where = append(where, "mime = ?")
		args = append(args, filter.Mime)
	}
	if filter.ExtractStatus != "" {
		where = append(where, "extract_status = ?")
		args = append(args, filter.ExtractStatus)
	}
	if filter.Q != "" {
		where = append(where, "(filename LIKE ? ESCAPE '\\' OR file_id LIKE ? ESCAPE '\\' OR sha256 LIKE ? ESCAPE '\\')")
		like := "%" + escapeLike(filter.Q) + "%"
		args = append(args, like, like, like)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE %s
		ORDER BY created_at_ms DESC
		LIMIT ?`, fileColumns, strings.Join(where, " AND "))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListPending returns non-tombstoned records whose extract_status is null
// or "pending", oldest first.
func (s *Store) ListPending(ctx context.Context, tenant string, limit int) ([]*File, error) {
	limit = clampLimit(limit, 25, 200)

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE tenant_id = ? AND deleted_at_ms IS NULL
		AND (extract_status IS NULL OR extract_status = 'pending')
		ORDER BY created_at_ms ASC
		LIMIT ?`

	rows, err := s.DB.QueryContext(ctx, query, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetAnnotations overwrites the annotations blob for a live record, touching
// extract_updated_at_ms but leaving extract_attempt and extract_status alone.
// Returns the number of rows affected (0 means NotFound to the caller).
func (s *Store) SetAnnotations(ctx context.Context, tenant, fileID, annotationsJSON string) (int64, error) {
	now := nowMs()
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE files SET annotations = ?, extract_updated_at_ms = ?
		WHERE tenant_id = ? AND file_id = ? AND deleted_at_ms IS NULL`,
		annotationsJSON, now, tenant, fileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetExtractStatus sets status/error, increments extract_attempt by one, and
// updates extract_updated_at_ms. Returns the number of rows affected.
func (s *Store) SetExtractStatus(ctx context.Context, tenant, fileID, status, errMsg string) (int64, error) {
	now := nowMs()
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE files SET extract_status = ?, extract_error = ?,
			extract_attempt = extract_attempt + 1, extract_updated_at_ms = ?
		WHERE tenant_id = ? AND file_id = ? AND deleted_at_ms IS NULL`,
		status, errMsg, now, tenant, fileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Tombstone sets deleted_at_ms if it is still null. Returns whether a row
// was actually changed (false if already tombstoned or absent).
func (s *Store) Tombstone(ctx context.Context, tenant, fileID string) (bool, error) {
	now := nowMs()
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE files SET deleted_at_ms = ?
		WHERE tenant_id = ? AND file_id = ? AND deleted_at_ms IS NULL`,
		now, tenant, fileID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nowMs() int64 { return time.Now().UnixMilli() }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
