package catalog

import (
	"database/sql"
	"fmt"
	"strings"
)

const schemaVersion = "1"

// DefaultBusyTimeout is SQLite's lock-wait ceiling; the catalog is a
// single-writer file shared by the Scheduler and any number of
// concurrent Planner reads.
const DefaultBusyTimeout = 30000

// buildDSN builds the libsql DSN. Journal mode and synchronous are
// still set via explicit PRAGMA after open, since libsql ignores
// DSN-based _pragma parameters.
func buildDSN(path string, busyTimeoutMS int) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", path, busyTimeoutMS)
}

// execPragma runs a PRAGMA via Query rather than Exec because libsql
// returns rows for PRAGMA statements; the rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	return rows.Close()
}

func applyPragmas(db *sql.DB, busyTimeoutMS int) error {
	if err := execPragma(db, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		return fmt.Errorf("setting busy_timeout: %w", err)
	}
	if err := execPragma(db, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting journal_mode=WAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("setting synchronous=NORMAL: %w", err)
	}
	if err := execPragma(db, "PRAGMA cache_size = -8000"); err != nil {
		return fmt.Errorf("setting cache_size: %w", err)
	}
	return nil
}

const createTables = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    root_uri TEXT NOT NULL,
    completed_at INTEGER NOT NULL,
    blob_id TEXT NOT NULL,
    error_count INTEGER NOT NULL,
    error_paths TEXT NOT NULL,
    root_size INTEGER NOT NULL,
    root_n_children INTEGER NOT NULL,
    root_n_desc INTEGER NOT NULL,
    needs_repair INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scan_root_uri ON scan(root_uri);
CREATE INDEX IF NOT EXISTS idx_scan_root_uri_completed_at ON scan(root_uri, completed_at DESC);

CREATE TABLE IF NOT EXISTS scan_progress (
    id TEXT PRIMARY KEY,
    root_uri TEXT NOT NULL,
    worker_pid INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    items_found INTEGER NOT NULL,
    items_per_sec REAL,
    error_count INTEGER NOT NULL,
    status TEXT NOT NULL
);
`

// execStatements runs sqlScript one statement at a time: the libsql
// driver doesn't support multi-statement Exec (teacher's
// execStatements/splitStatements in internal/storage/schema.go).
func execStatements(db *sql.DB, sqlScript string) error {
	for _, stmt := range splitStatements(sqlScript) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var statements []string
	var current []byte
	for i := 0; i < len(script); i++ {
		current = append(current, script[i])
		if script[i] == ';' {
			statements = append(statements, string(current))
			current = nil
		}
	}
	if len(current) > 0 {
		statements = append(statements, string(current))
	}
	return statements
}
