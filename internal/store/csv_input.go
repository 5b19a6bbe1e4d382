package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ors-matrix/internal/model"
	"ors-matrix/pkg/utils"
)

var csvColumns = []string{"row_src", "row_dest", "lon_src", "lat_src", "lon_dest", "lat_dest"}

// CSVInput reads coordinate pair rows from a CSV file with a header naming
// the same columns as SQLiteInput. Select keeps only the requested window in
// memory and continues from the previous window when reads move forward; a
// window before the cursor rewinds the file. It is not safe for concurrent use.
type CSVInput struct {
	path    string
	columns [6]int
	cur     *csvCursor
}

// csvCursor is an open reader positioned before data row next.
type csvCursor struct {
	f    *os.File
	r    *csv.Reader
	next int64
	eof  bool
}

// OpenCSVInput checks the file header and remembers the column positions.
func OpenCSVInput(path string) (*CSVInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input store: %w", err)
	}
	defer f.Close()

	header, err := newCSVReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	positions := make(map[string]int, len(header))
	for i, h := range header {
		// Clean header names: trim whitespace and remove quotes
		clean := strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
		positions[strings.ToLower(clean)] = i
	}

	in := &CSVInput{path: path}
	for i, col := range csvColumns {
		pos, ok := positions[col]
		if !ok {
			return nil, fmt.Errorf("CSV header missing column %q", col)
		}
		in.columns[i] = pos
	}
	return in, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// Count returns the number of data rows.
func (in *CSVInput) Count(ctx context.Context) (int64, error) {
	var n int64
	err := in.scan(ctx, func(int64, []string) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Select returns data rows [start, stop).
func (in *CSVInput) Select(ctx context.Context, start, stop int64) ([]model.PairRow, error) {
	if stop <= start {
		return nil, nil
	}
	if in.cur == nil || start < in.cur.next {
		if err := in.rewind(); err != nil {
			return nil, err
		}
	}

	cur := in.cur
	out := make([]model.PairRow, 0, stop-start)
	for ; !cur.eof && cur.next < stop; cur.next++ {
		if cur.next%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record, err := cur.r.Read()
		if errors.Is(err, io.EOF) {
			cur.eof = true
			break
		}
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("CSV read error: %w", err)
		}
		if cur.next < start {
			continue
		}
		row, err := in.parse(record)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("CSV row %d: %w", cur.next, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Close releases the open cursor, if any.
func (in *CSVInput) Close() error {
	if in.cur == nil {
		return nil
	}
	err := in.cur.f.Close()
	in.cur = nil
	return err
}

func (in *CSVInput) rewind() error {
	if err := in.Close(); err != nil {
		return err
	}
	f, err := os.Open(in.path)
	if err != nil {
		return fmt.Errorf("open input store: %w", err)
	}
	r := newCSVReader(f)
	if _, err := r.Read(); err != nil {
		f.Close()
		return fmt.Errorf("read CSV header: %w", err)
	}
	in.cur = &csvCursor{f: f, r: r}
	return nil
}

func (in *CSVInput) scan(ctx context.Context, fn func(int64, []string) (bool, error)) error {
	f, err := os.Open(in.path)
	if err != nil {
		return fmt.Errorf("open input store: %w", err)
	}
	defer f.Close()

	r := newCSVReader(f)
	if _, err := r.Read(); err != nil {
		return fmt.Errorf("read CSV header: %w", err)
	}
	for i := int64(0); ; i++ {
		if i%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("CSV read error: %w", err)
		}
		more, err := fn(i, record)
		if err != nil || !more {
			return err
		}
	}
}

func (in *CSVInput) parse(record []string) (model.PairRow, error) {
	field := func(i int) (string, error) {
		pos := in.columns[i]
		if pos >= len(record) {
			return "", fmt.Errorf("missing column %q", csvColumns[i])
		}
		return record[pos], nil
	}

	var idx [2]int64
	for i := range idx {
		s, err := field(i)
		if err != nil {
			return model.PairRow{}, err
		}
		if idx[i], err = utils.ParseIndex(s); err != nil {
			return model.PairRow{}, fmt.Errorf("column %q: %w", csvColumns[i], err)
		}
	}

	var coords [4]float64
	for i := range coords {
		s, err := field(i + 2)
		if err != nil {
			return model.PairRow{}, err
		}
		if coords[i], err = utils.ParseFloat(s); err != nil {
			return model.PairRow{}, fmt.Errorf("column %q: %w", csvColumns[i+2], err)
		}
	}

	return model.PairRow{
		Key:  model.PairKey{Src: idx[0], Dest: idx[1]},
		Src:  model.Coordinate{Lon: coords[0], Lat: coords[1]},
		Dest: model.Coordinate{Lon: coords[2], Lat: coords[3]},
	}, nil
}
