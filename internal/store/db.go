package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a requested run or measurement does not exist.
	ErrNotFound = errors.New("not found")
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates and quotes a table name.
func quoteIdent(name string) (string, error) {
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return `"` + name + `"`, nil
}

// openSQLite opens a database file. Read-only handles never create the file.
func openSQLite(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		dsn += "&mode=ro"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return db, nil
}

const outputSchema = `
CREATE TABLE IF NOT EXISTS network_blocks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_index INTEGER NOT NULL,
	records INTEGER NOT NULL,
	codec TEXT NOT NULL,
	raw_bytes INTEGER NOT NULL,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS network (
	row_src INTEGER NOT NULL,
	row_dest INTEGER NOT NULL,
	block_id INTEGER NOT NULL,
	block_pos INTEGER NOT NULL,
	PRIMARY KEY (row_src, row_dest)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	iteration_start INTEGER NOT NULL,
	chunksize INTEGER NOT NULL,
	total_rows INTEGER NOT NULL,
	params TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk_progress (
	run_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	row_start INTEGER NOT NULL,
	row_stop INTEGER NOT NULL,
	records INTEGER NOT NULL,
	failures INTEGER NOT NULL,
	duplicates INTEGER NOT NULL DEFAULT 0,
	workers INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS row_failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	row_src INTEGER NOT NULL,
	row_dest INTEGER NOT NULL,
	code TEXT NOT NULL,
	message TEXT NOT NULL,
	geodesic_km REAL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS row_failures_run ON row_failures (run_id, chunk_index);
CREATE INDEX IF NOT EXISTS chunk_progress_rows ON chunk_progress (row_start, row_stop);
`

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}
