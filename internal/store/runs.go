package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ors-matrix/internal/model"
)

// CreateRun records the start of a run.
func (o *SQLiteOutput) CreateRun(ctx context.Context, run model.RunRecord) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	now := o.now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	_, err = o.db.ExecContext(ctx, `INSERT INTO runs
		(id, status, iteration_start, chunksize, total_rows, params, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.IterationStart, run.Chunksize, run.TotalRows, string(params),
		run.StartedAt.UTC(), now)
	return err
}

// UpdateRunStatus updates a run's status.
func (o *SQLiteOutput) UpdateRunStatus(ctx context.Context, runID, status string) error {
	res, err := o.db.ExecContext(ctx, `UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, o.now().UTC(), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (o *SQLiteOutput) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT id, status, iteration_start, chunksize, total_rows, params,
		started_at, updated_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run.
func (o *SQLiteOutput) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	row := o.db.QueryRowContext(ctx, `SELECT id, status, iteration_start, chunksize, total_rows, params,
		started_at, updated_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, ErrNotFound
	}
	return run, err
}

func scanRun(s scanner) (model.RunRecord, error) {
	var (
		run    model.RunRecord
		params string
	)
	if err := s.Scan(&run.ID, &run.Status, &run.IterationStart, &run.Chunksize, &run.TotalRows,
		&params, &run.StartedAt, &run.UpdatedAt); err != nil {
		return model.RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

// ListChunks returns the telemetry of every chunk appended by a run, in index order.
func (o *SQLiteOutput) ListChunks(ctx context.Context, runID string) ([]model.ChunkRecord, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT run_id, chunk_index, row_start, row_stop, records, failures,
		duplicates, workers, started_at, ended_at FROM chunk_progress WHERE run_id = ? ORDER BY chunk_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.ChunkRecord
	for rows.Next() {
		var c model.ChunkRecord
		if err := rows.Scan(&c.RunID, &c.Chunk.Index, &c.Chunk.Start, &c.Chunk.Stop, &c.Records, &c.Failures,
			&c.Duplicates, &c.Workers, &c.StartedAt, &c.EndedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListFailures returns up to limit journaled row failures of a run.
func (o *SQLiteOutput) ListFailures(ctx context.Context, runID string, limit int) ([]model.FailureRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := o.db.QueryContext(ctx, `SELECT run_id, chunk_index, row_src, row_dest, code, message,
		geodesic_km, created_at FROM row_failures WHERE run_id = ? ORDER BY id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []model.FailureRecord
	for rows.Next() {
		var (
			f  model.FailureRecord
			km sql.NullFloat64
		)
		if err := rows.Scan(&f.RunID, &f.ChunkIndex, &f.Failure.Key.Src, &f.Failure.Key.Dest, &f.Failure.Code,
			&f.Failure.Message, &km, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Failure.GeodesicKm = fromNullable(km)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func insertFailures(ctx context.Context, tx *sql.Tx, runID string, chunkIndex int64, failures []model.RowFailure, now time.Time) error {
	if len(failures) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO row_failures
		(run_id, chunk_index, row_src, row_dest, code, message, geodesic_km, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, runID, chunkIndex, f.Key.Src, f.Key.Dest, f.Code, f.Message,
			nullable(f.GeodesicKm), now); err != nil {
			return err
		}
	}
	return nil
}
