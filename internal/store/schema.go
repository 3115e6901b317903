package store

// Schema contains the DDL for the files table and its indices.
const Schema = `
CREATE TABLE IF NOT EXISTS files (
    row_id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id                TEXT NOT NULL,
    file_id                  TEXT NOT NULL,
    session_id               TEXT,
    filename                 TEXT NOT NULL,
    mime                     TEXT,
    size                     INTEGER NOT NULL,
    sha256                   TEXT NOT NULL,
    created_at_ms            INTEGER NOT NULL,
    source                   TEXT,
    encrypted                INTEGER NOT NULL DEFAULT 0,
    storage_path             TEXT NOT NULL,
    deleted_at_ms            INTEGER,
    extract_status           TEXT,
    extract_updated_at_ms    INTEGER,
    extract_attempt          INTEGER NOT NULL DEFAULT 0,
    extract_error            TEXT,
    annotations              TEXT
);

-- (tenant_id, file_id) is the logical identity, but only among live rows:
-- a tombstoned row must not block a later re-ingest of the same bytes.
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_live_identity
    ON files(tenant_id, file_id) WHERE deleted_at_ms IS NULL;

CREATE INDEX IF NOT EXISTS idx_files_tenant_created
    ON files(tenant_id, created_at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_files_tenant_session
    ON files(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_files_tenant_filename
    ON files(tenant_id, filename);
`

// migrations lists idempotent ALTER TABLE statements applied after Schema,
// so that columns added after initial release are tolerated on existing
// databases the same way a fresh CREATE TABLE already has them.
var migrations = []struct {
	column string
	ddl    string
}{
	{"annotations", "ALTER TABLE files ADD COLUMN annotations TEXT"},
	{"extract_error", "ALTER TABLE files ADD COLUMN extract_error TEXT"},
}
