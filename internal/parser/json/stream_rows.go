package json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ecommetl/internal/transformer"
	"ecommetl/internal/transformer/builtin"
)

// errLineTooLong is reported for lines above Options.MaxLineBytes.
var errLineTooLong = errors.New("json: line exceeds max_line_bytes")

// StreamJSONRows parses JSON objects from src according to opt and streams
// them as *transformer.Row into 'out'.
//
// Contract:
//
//   - columns is the ordered list of dataset columns. For each emitted
//     record, row.V[i] holds the value of the key that maps to columns[i];
//     missing keys stay nil. Numbers arrive as json.Number so their digits
//     are preserved.
//
//   - Keys are matched through opt.HeaderMap first, then through
//     builtin.CanonicalName, so "Event Type" fills event_type.
//
//   - Per-record errors go to onParseErr and do not stop the stream in the
//     lines layout. Errors that make the rest of the object unreadable are
//     returned.
func StreamJSONRows(
	ctx context.Context,
	src io.ReadCloser,
	origin transformer.Origin,
	columns []string,
	opt Options,
	out chan<- *transformer.Row,
	onParseErr func(line int, err error),
) error {
	defer src.Close()

	m := newKeyMapper(columns, opt.HeaderMap)
	emit := func(line int, obj map[string]any) error {
		row := transformer.GetRow(len(columns))
		origin.Stamp(row, line)
		for k, v := range obj {
			if ix := m.index(k); ix >= 0 {
				row.V[ix] = v
			}
		}
		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			row.Free()
			return ctx.Err()
		}
	}

	if opt.Layout == LayoutDocument {
		return streamDocument(ctx, src, emit, onParseErr)
	}
	return streamLines(ctx, src, opt.MaxLineBytes, emit, onParseErr)
}

func streamLines(
	ctx context.Context,
	src io.Reader,
	maxLine int,
	emit func(line int, obj map[string]any) error,
	onParseErr func(line int, err error),
) error {
	br := bufio.NewReaderSize(src, 64*1024)
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, rerr := br.ReadBytes('\n')
		if len(b) > 0 {
			line++
			b = bytes.TrimSpace(b)
			switch {
			case len(b) == 0:
			case maxLine > 0 && len(b) > maxLine:
				report(onParseErr, line, errLineTooLong)
			default:
				obj, err := decodeObject(b)
				if err != nil {
					report(onParseErr, line, err)
					break
				}
				if err := emit(line, obj); err != nil {
					return err
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("json: read line %d: %w", line+1, rerr)
		}
	}
}

func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("json: decode: %w", err)
	}
	if obj == nil {
		return nil, errors.New("json: line is not an object")
	}
	if dec.More() {
		return nil, errors.New("json: trailing data after object")
	}
	return obj, nil
}

// streamDocument handles a root array, an envelope object, a single object,
// and any further top-level objects that follow.
func streamDocument(
	ctx context.Context,
	src io.Reader,
	emit func(line int, obj map[string]any) error,
	onParseErr func(line int, err error),
) error {
	dec := json.NewDecoder(src)
	dec.UseNumber()
	line := 0

	var root any
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return nil // empty input
		}
		report(onParseErr, 0, err)
		return fmt.Errorf("json: decode root: %w", err)
	}

	switch v := root.(type) {
	case []any:
		for _, elem := range v {
			line++
			obj, ok := elem.(map[string]any)
			if !ok {
				report(onParseErr, line, fmt.Errorf("json: array element not an object (got %T)", elem))
				continue
			}
			if err := emit(line, obj); err != nil {
				return err
			}
		}
	case map[string]any:
		if slice := findObjectSlice(v); slice != nil {
			for _, obj := range slice {
				line++
				if err := emit(line, obj); err != nil {
					return err
				}
			}
		} else {
			line++
			if err := emit(line, v); err != nil {
				return err
			}
		}
	default:
		err := fmt.Errorf("json: unsupported root type %T (want object or array)", v)
		report(onParseErr, 0, err)
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if err == io.EOF {
				return nil
			}
			report(onParseErr, line+1, err)
			return fmt.Errorf("json: decode subsequent value: %w", err)
		}
		line++
		if err := emit(line, obj); err != nil {
			return err
		}
	}
}

// findObjectSlice searches the top-level object for a value that is an
// array-of-object and returns the first such slice it finds, so envelopes
// like {"records": [...], "meta": {...}} yield their records.
func findObjectSlice(root map[string]any) []map[string]any {
	for _, v := range root {
		rawSlice, ok := v.([]any)
		if !ok || len(rawSlice) == 0 {
			continue
		}
		objects := make([]map[string]any, 0, len(rawSlice))
		valid := true
		for _, elem := range rawSlice {
			if elem == nil {
				continue
			}
			m, ok := elem.(map[string]any)
			if !ok {
				valid = false
				break
			}
			objects = append(objects, m)
		}
		if valid && len(objects) > 0 {
			return objects
		}
	}
	return nil
}

func report(fn func(int, error), line int, err error) {
	if fn != nil {
		fn(line, err)
	}
}

// keyMapper resolves JSON keys to column positions, caching canonical names
// since the same few keys repeat on every line.
type keyMapper struct {
	header map[string]string
	pos    map[string]int
	cache  map[string]int
}

func newKeyMapper(columns []string, header map[string]string) *keyMapper {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		name := builtin.CanonicalName(c)
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	return &keyMapper{header: header, pos: pos, cache: make(map[string]int, len(columns))}
}

func (m *keyMapper) index(key string) int {
	if ix, ok := m.cache[key]; ok {
		return ix
	}
	name := key
	if mapped, ok := m.header[key]; ok && mapped != "" {
		name = mapped
	}
	ix, ok := m.pos[builtin.CanonicalName(name)]
	if !ok {
		ix = -1
	}
	m.cache[key] = ix
	return ix
}
