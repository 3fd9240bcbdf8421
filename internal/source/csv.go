// Package source provides raw record sources: CSV files and in-memory
// slices.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

// CSV reads raw records from a delimited file with a header row. Every
// value is yielded as the string found in the file; empty cells are
// yielded as "".
type CSV struct {
	name  string
	path  string
	comma rune
}

// CSVOption configures a CSV source.
type CSVOption func(*CSV)

// WithComma sets the field delimiter.
func WithComma(r rune) CSVOption {
	return func(c *CSV) { c.comma = r }
}

// NewCSV creates a source named name reading path.
func NewCSV(name, path string, opts ...CSVOption) *CSV {
	c := &CSV{name: name, path: path, comma: ','}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements core.RecordSource.
func (c *CSV) Name() string { return c.name }

// Path returns the file the source reads.
func (c *CSV) Path() string { return c.path }

// Columns returns the normalized header of the file.
func (c *CSV) Columns() ([]string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer func() { _ = f.Close() }()
	return readHeader(c.reader(f))
}

// Records implements core.RecordSource. Iteration stops at the first error.
func (c *CSV) Records(ctx context.Context) iter.Seq2[core.RawRecord, error] {
	return func(yield func(core.RawRecord, error) bool) {
		f, err := os.Open(c.path)
		if err != nil {
			yield(nil, fmt.Errorf("open %s: %w", c.path, err))
			return
		}
		defer func() { _ = f.Close() }()

		cr := c.reader(f)
		header, err := readHeader(cr)
		if err != nil {
			yield(nil, fmt.Errorf("%s: %w", c.path, err))
			return
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%s: %w", c.path, err))
				return
			}
			if len(row) != len(header) {
				line, _ := cr.FieldPos(0)
				yield(nil, fmt.Errorf("%s:%d: expected %d fields, got %d", c.path, line, len(header), len(row)))
				return
			}
			rec := make(core.RawRecord, len(header))
			for i, h := range header {
				rec[h] = row[i]
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (c *CSV) reader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = c.comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr
}

// readHeader reads the header row, trimming names and a UTF-8 BOM.
func readHeader(cr *csv.Reader) ([]string, error) {
	row, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := make([]string, len(row))
	seen := make(map[string]bool, len(row))
	for i, h := range row {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("header column %q repeated", h)
		}
		seen[h] = true
		header[i] = h
	}
	return header, nil
}
