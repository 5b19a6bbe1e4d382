package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ors-matrix/internal/model"
)

const (
	appendMaxRetries = 5
	// cachedBlocks bounds the decoded blocks held while reading in key order.
	cachedBlocks = 16
)

// SQLiteOutput is the append-only measurement store plus the run journal.
// Each appended chunk becomes one compressed columnar block in
// network_blocks; the network table indexes every key to its block.
type SQLiteOutput struct {
	db    *sql.DB
	codec *blockCodec
	now   func() time.Time
}

// OpenOutput opens or creates the output database at path.
func OpenOutput(ctx context.Context, path string) (*SQLiteOutput, error) {
	db, err := openSQLite(ctx, path, false)
	if err != nil {
		return nil, fmt.Errorf("open output store: %w", err)
	}
	if _, err := db.ExecContext(ctx, outputSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create output schema: %w", err)
	}
	codec, err := newBlockCodec(false)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteOutput{db: db, codec: codec, now: time.Now}, nil
}

// OpenOutputReadOnly opens an existing output database for the status API.
func OpenOutputReadOnly(ctx context.Context, path string) (*SQLiteOutput, error) {
	db, err := openSQLite(ctx, path, true)
	if err != nil {
		return nil, fmt.Errorf("open output store: %w", err)
	}
	codec, err := newBlockCodec(true)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteOutput{db: db, codec: codec, now: time.Now}, nil
}

func (o *SQLiteOutput) Close() error {
	o.codec.Close()
	return o.db.Close()
}

// ChunkCommitted reports whether a journaled chunk already covers any row of c.
func (o *SQLiteOutput) ChunkCommitted(ctx context.Context, c model.Chunk) (bool, error) {
	var committed bool
	err := o.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM chunk_progress WHERE row_start < ? AND row_stop > ?)`, c.Stop, c.Start).Scan(&committed)
	return committed, err
}

// Append writes one chunk's batch, its failures and its telemetry row in a
// single transaction. Either all of it is committed or none of it is.
// A key already stored by an earlier chunk keeps its first value; the new
// measurement is dropped and journaled as a duplicate.
// Busy or locked databases are retried with exponential backoff.
func (o *SQLiteOutput) Append(ctx context.Context, batch model.Batch, rec model.ChunkRecord) (model.AppendResult, error) {
	var res model.AppendResult
	op := func() error {
		var err error
		res, err = o.appendOnce(ctx, batch, rec)
		if err == nil || isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), appendMaxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return model.AppendResult{}, fmt.Errorf("append chunk %d: %w", batch.Chunk.Index, err)
	}
	return res, nil
}

func (o *SQLiteOutput) appendOnce(ctx context.Context, batch model.Batch, rec model.ChunkRecord) (model.AppendResult, error) {
	var res model.AppendResult

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	block, err := tx.ExecContext(ctx, `INSERT INTO network_blocks (chunk_index, records, codec, raw_bytes, data)
		VALUES (?, 0, ?, 0, x'')`, batch.Chunk.Index, codecZstdColumns)
	if err != nil {
		return res, err
	}
	blockID, err := block.LastInsertId()
	if err != nil {
		return res, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO network (row_src, row_dest, block_id, block_pos)
		VALUES (?, ?, ?, ?) ON CONFLICT (row_src, row_dest) DO NOTHING`)
	if err != nil {
		return res, err
	}
	defer stmt.Close()

	kept := make([]model.Measurement, 0, len(batch.Measurements))
	for _, m := range batch.Measurements {
		r, err := stmt.ExecContext(ctx, m.Key.Src, m.Key.Dest, blockID, len(kept))
		if err != nil {
			return res, err
		}
		if n, err := r.RowsAffected(); err != nil {
			return res, err
		} else if n == 0 {
			res.Duplicates = append(res.Duplicates, m.Key)
			continue
		}
		kept = append(kept, m)
	}
	res.Stored = len(kept)

	if len(kept) == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM network_blocks WHERE id = ?`, blockID)
	} else {
		data, rawBytes := o.codec.encode(kept)
		_, err = tx.ExecContext(ctx, `UPDATE network_blocks SET records = ?, raw_bytes = ?, data = ? WHERE id = ?`,
			len(kept), rawBytes, data, blockID)
	}
	if err != nil {
		return res, err
	}

	if rec.RunID != "" {
		now := o.now().UTC()
		if err := insertFailures(ctx, tx, rec.RunID, batch.Chunk.Index, journalFailures(batch.Failures, res.Duplicates), now); err != nil {
			return res, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_progress
			(run_id, chunk_index, row_start, row_stop, records, failures, duplicates, workers, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, rec.Chunk.Index, rec.Chunk.Start, rec.Chunk.Stop, res.Stored, len(batch.Failures),
			len(res.Duplicates), rec.Workers, rec.StartedAt.UTC(), rec.EndedAt.UTC()); err != nil {
			return res, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, now, rec.RunID); err != nil {
			return res, err
		}
	}

	return res, tx.Commit()
}

func journalFailures(failures []model.RowFailure, duplicates []model.PairKey) []model.RowFailure {
	if len(duplicates) == 0 {
		return failures
	}
	out := make([]model.RowFailure, 0, len(failures)+len(duplicates))
	out = append(out, failures...)
	for _, k := range duplicates {
		out = append(out, model.RowFailure{
			Key:        k,
			Code:       model.FailureDuplicate,
			Message:    "key already stored by an earlier chunk",
			GeodesicKm: math.NaN(),
		})
	}
	return out
}

// Lookup returns the measurement stored for key.
func (o *SQLiteOutput) Lookup(ctx context.Context, key model.PairKey) (model.Measurement, error) {
	var blockID, pos int64
	err := o.db.QueryRowContext(ctx,
		`SELECT block_id, block_pos FROM network WHERE row_src = ? AND row_dest = ?`,
		key.Src, key.Dest).Scan(&blockID, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Measurement{}, ErrNotFound
	}
	if err != nil {
		return model.Measurement{}, err
	}

	ms, err := o.newBlockReader(1).block(ctx, blockID)
	if err != nil {
		return model.Measurement{}, err
	}
	return at(ms, blockID, pos)
}

// Range returns up to limit measurements with from <= key < to, ascending.
// A non-positive limit means no limit.
func (o *SQLiteOutput) Range(ctx context.Context, from, to model.PairKey, limit int) ([]model.Measurement, error) {
	if limit <= 0 {
		limit = -1
	}
	refs, err := o.keyRefs(ctx, `SELECT block_id, block_pos FROM network
		WHERE (row_src, row_dest) >= (?, ?) AND (row_src, row_dest) < (?, ?)
		ORDER BY row_src, row_dest LIMIT ?`, from.Src, from.Dest, to.Src, to.Dest, limit)
	if err != nil {
		return nil, err
	}

	br := o.newBlockReader(cachedBlocks)
	var out []model.Measurement
	for _, ref := range refs {
		ms, err := br.block(ctx, ref.block)
		if err != nil {
			return nil, err
		}
		m, err := at(ms, ref.block, ref.pos)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Count returns the number of stored measurements.
func (o *SQLiteOutput) Count(ctx context.Context) (int64, error) {
	var n int64
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM network`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

type keyRef struct {
	block int64
	pos   int64
}

func (o *SQLiteOutput) keyRefs(ctx context.Context, query string, args ...any) ([]keyRef, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []keyRef
	for rows.Next() {
		var r keyRef
		if err := rows.Scan(&r.block, &r.pos); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func at(ms []model.Measurement, blockID, pos int64) (model.Measurement, error) {
	if pos < 0 || pos >= int64(len(ms)) {
		return model.Measurement{}, fmt.Errorf("%w: block %d has no record %d", errCorruptBlock, blockID, pos)
	}
	return ms[pos], nil
}

// blockReader decodes blocks on demand and keeps up to size of them.
type blockReader struct {
	o     *SQLiteOutput
	size  int
	cache map[int64][]model.Measurement
	order []int64
}

func (o *SQLiteOutput) newBlockReader(size int) *blockReader {
	return &blockReader{o: o, size: max(size, 1), cache: make(map[int64][]model.Measurement)}
}

func (r *blockReader) block(ctx context.Context, id int64) ([]model.Measurement, error) {
	if ms, ok := r.cache[id]; ok {
		return ms, nil
	}

	var data []byte
	err := r.o.db.QueryRowContext(ctx, `SELECT data FROM network_blocks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: block %d missing", errCorruptBlock, id)
	}
	if err != nil {
		return nil, err
	}
	ms, err := r.o.codec.decode(data)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", id, err)
	}

	if len(r.order) == r.size {
		delete(r.cache, r.order[0])
		r.order = r.order[1:]
	}
	r.cache[id] = ms
	r.order = append(r.order, id)
	return ms, nil
}

// nullable stores NaN as NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
