// Package csv streams delimited text objects into pooled transformer rows.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"ecommetl/internal/config"
	"ecommetl/internal/transformer"
)

// StreamCSVRows sends one pooled row per record of src to out, with cells
// aligned to columns and the row stamped with origin. src is closed on return.
//
// Options:
//   - has_header (default true): bind columns by header name, canonicalized
//     through header_map and builtin.CanonicalName. Without a header, cells
//     bind by position.
//   - comma (default ','), lazy_quotes (default false).
//   - trim_space (default true): trim edge whitespace; empty cells are nil.
//   - fields_per_record: when > 0, records of another width are errors.
//
// Malformed records (*csv.ParseError) go to onErr with the 1-based line they
// start on and are skipped. Any other read error, such as a truncated
// compressed object, ends the stream and is returned. An object whose header
// cannot be read fails as a whole.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	origin transformer.Origin,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()
	if onErr == nil {
		onErr = func(int, error) {}
	}

	cr := csv.NewReader(src)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	if n := opt.Int("fields_per_record", 0); n > 0 {
		cr.FieldsPerRecord = n
	}
	trim := opt.Bool("trim_space", true)

	// line is the physical line a record starts on; quoted fields may span
	// several lines.
	line := 0
	next := func() ([]string, error) {
		rec, err := cr.Read()
		var pe *csv.ParseError
		switch {
		case err == nil && len(rec) > 0:
			line, _ = cr.FieldPos(0)
		case errors.As(err, &pe):
			line = pe.StartLine
		}
		return rec, err
	}

	bind := positional(len(columns))
	if opt.Bool("has_header", true) {
		hdr, err := next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			onErr(line, fmt.Errorf("read header: %w", err))
			return fmt.Errorf("csv: read header: %w", err)
		}
		bind = bindHeader(hdr, columns, opt.StringMap("header_map"))
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			onErr(line, fmt.Errorf("csv read: %w", err))
			continue
		}
		if err != nil {
			return fmt.Errorf("csv: read after line %d: %w", line, err)
		}

		row := transformer.GetRow(len(columns))
		origin.Stamp(row, line)
		bind.fill(row.V, rec, trim)

		select {
		case out <- row:
		case <-ctx.Done():
			row.Free()
			return ctx.Err()
		}
	}
}
