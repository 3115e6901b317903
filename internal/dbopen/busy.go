package dbopen

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Write retry tuning. The store's writes are single short statements, so
// a handful of quick retries with doubling backoff rides out another
// goroutine's WAL writer lock; anything held longer falls through to
// busy_timeout and then errors.
const (
	writeAttempts = 4
	writeBackoff  = 25 * time.Millisecond
)

// IsBusy reports whether err is SQLite's BUSY/locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs one write statement, retrying on BUSY. Non-BUSY errors —
// including the constraint violations the store inspects for dedup
// races — return immediately and unwrapped.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	backoff := writeBackoff
	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil || !IsBusy(err) {
			return res, err
		}
		lastErr = err

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
