package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"ors-matrix/internal/model"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ValidateFormat reports whether Export can write format.
func ValidateFormat(format string) error {
	switch format {
	case FormatCSV, FormatJSON:
		return nil
	}
	return fmt.Errorf("unknown export format %q (want csv or json)", format)
}

// Export streams the measurement table to w in key order and returns the
// number of rows written. CSV leaves unroutable values empty; JSON writes one
// object per line with null values.
func (o *SQLiteOutput) Export(ctx context.Context, w io.Writer, format string) (int, error) {
	var write func(src, dest int64, s2d, d2s float64) error
	var flush func() error

	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"row_src", "row_dest", "src2dest", "dest2src"}); err != nil {
			return 0, err
		}
		write = func(src, dest int64, s2d, d2s float64) error {
			return cw.Write([]string{
				strconv.FormatInt(src, 10), strconv.FormatInt(dest, 10), formatValue(s2d), formatValue(d2s),
			})
		}
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
	case FormatJSON:
		enc := json.NewEncoder(w)
		write = func(src, dest int64, s2d, d2s float64) error {
			return enc.Encode(struct {
				RowSrc   int64    `json:"row_src"`
				RowDest  int64    `json:"row_dest"`
				Src2Dest *float64 `json:"src2dest"`
				Dest2Src *float64 `json:"dest2src"`
			}{src, dest, valuePtr(s2d), valuePtr(d2s)})
		}
		flush = func() error { return nil }
	default:
		return 0, ValidateFormat(format)
	}

	rows, err := o.db.QueryContext(ctx,
		`SELECT row_src, row_dest, block_id, block_pos FROM network ORDER BY row_src, row_dest`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	br := o.newBlockReader(cachedBlocks)
	var n int
	for rows.Next() {
		var (
			key model.PairKey
			ref keyRef
		)
		if err := rows.Scan(&key.Src, &key.Dest, &ref.block, &ref.pos); err != nil {
			return n, err
		}
		ms, err := br.block(ctx, ref.block)
		if err != nil {
			return n, err
		}
		m, err := at(ms, ref.block, ref.pos)
		if err != nil {
			return n, err
		}
		if m.Key != key {
			return n, fmt.Errorf("%w: block %d record %d holds %s, want %s", errCorruptBlock, ref.block, ref.pos, m.Key, key)
		}
		if err := write(m.Key.Src, m.Key.Dest, m.SrcToDest, m.DestToSrc); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, flush()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func valuePtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
