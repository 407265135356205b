package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const sqliteDriverName = "sqlite"

const schemaEvents = `
CREATE TABLE IF NOT EXISTS lifecycle_events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    occurred_at TEXT NOT NULL,
    kind TEXT NOT NULL,
    cycle_id INTEGER NOT NULL,
    state TEXT NOT NULL,
    detail TEXT
);
`

const schemaEventsIndex = `
CREATE INDEX IF NOT EXISTS lifecycle_events_occurred_at ON lifecycle_events (occurred_at);
`

// Open opens or creates the journal database and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:mnd // Owner and group only.
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// A single writer: the coordinator goroutine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err = ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaEvents, schemaEventsIndex} {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}

	return nil
}
