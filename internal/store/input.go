package store

import (
	"context"
	"database/sql"
	"fmt"

	"ors-matrix/internal/model"
)

// SQLiteInput reads coordinate pair rows from a table with the columns
// row_src, row_dest, lon_src, lat_src, lon_dest, lat_dest. A Select that
// starts where the previous one stopped seeks by rowid instead of skipping
// rows with OFFSET. It is not safe for concurrent use.
type SQLiteInput struct {
	db    *sql.DB
	table string

	next      int64 // row position after the last Select
	lastRowid int64
}

// OpenSQLiteInput opens path read-only and checks that table is readable.
func OpenSQLiteInput(ctx context.Context, path, table string) (*SQLiteInput, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	db, err := openSQLite(ctx, path, true)
	if err != nil {
		return nil, err
	}
	return &SQLiteInput{db: db, table: quoted}, nil
}

// Count returns the number of rows in the table.
func (in *SQLiteInput) Count(ctx context.Context) (int64, error) {
	var n int64
	err := in.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+in.table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count input rows: %w", err)
	}
	return n, nil
}

// Select returns rows [start, stop) in storage order.
func (in *SQLiteInput) Select(ctx context.Context, start, stop int64) ([]model.PairRow, error) {
	if stop <= start {
		return nil, nil
	}
	const columns = `SELECT rowid, row_src, row_dest, lon_src, lat_src, lon_dest, lat_dest FROM `

	var (
		rows *sql.Rows
		err  error
	)
	if start > 0 && start == in.next {
		rows, err = in.db.QueryContext(ctx, columns+in.table+` WHERE rowid > ? ORDER BY rowid LIMIT ?`,
			in.lastRowid, stop-start)
	} else {
		rows, err = in.db.QueryContext(ctx, columns+in.table+` ORDER BY rowid LIMIT ? OFFSET ?`,
			stop-start, start)
	}
	if err != nil {
		return nil, fmt.Errorf("select input rows [%d, %d): %w", start, stop, err)
	}
	defer rows.Close()

	out := make([]model.PairRow, 0, stop-start)
	var rowid int64
	for rows.Next() {
		var r model.PairRow
		if err := rows.Scan(&rowid, &r.Key.Src, &r.Key.Dest, &r.Src.Lon, &r.Src.Lat, &r.Dest.Lon, &r.Dest.Lat); err != nil {
			return nil, fmt.Errorf("scan input row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		in.next, in.lastRowid = start+int64(len(out)), rowid
	}
	return out, nil
}

func (in *SQLiteInput) Close() error { return in.db.Close() }

// WriteSQLiteInput creates (or replaces) table in path and fills it with rows.
func WriteSQLiteInput(ctx context.Context, path, table string, rows []model.PairRow) error {
	quoted, err := quoteIdent(table)
	if err != nil {
		return err
	}
	db, err := openSQLite(ctx, path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DROP TABLE IF EXISTS ` + quoted,
		`CREATE TABLE ` + quoted + ` (
			row_src INTEGER NOT NULL,
			row_dest INTEGER NOT NULL,
			lon_src REAL NOT NULL,
			lat_src REAL NOT NULL,
			lon_dest REAL NOT NULL,
			lat_dest REAL NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+quoted+
		` (row_src, row_dest, lon_src, lat_src, lon_dest, lat_dest) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Key.Src, r.Key.Dest, r.Src.Lon, r.Src.Lat, r.Dest.Lon, r.Dest.Lat); err != nil {
			return err
		}
	}
	return tx.Commit()
}
