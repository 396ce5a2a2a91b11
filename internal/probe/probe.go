// Package probe samples the objects under a raw table location and infers
// what a crawler would register for it: column names and types, and the
// partition keys found in the storage layout.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"ecommetl/internal/catalog"
	"ecommetl/internal/config"
	"ecommetl/internal/objstore"
	"ecommetl/internal/transformer/builtin"
)

// Options control sampling.
type Options struct {
	// MaxObjects is how many data objects are sampled. Default 3.
	MaxObjects int
	// MaxBytes is read from the start of each sampled object. Default 1 MiB.
	MaxBytes int
	// Parser options; "comma" and "has_header" matter for CSV.
	Parser config.Options
}

// Result is the inferred table shape.
type Result struct {
	Columns       []catalog.Column
	PartitionKeys []string
	Objects       int
	Records       int
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
}

var dateLayouts = []string{"2006-01-02"}

// Infer samples store in the given format. Column names are canonicalized
// with builtin.CanonicalName, in first-seen order.
func Infer(ctx context.Context, store objstore.Store, format string, opt Options) (Result, error) {
	if opt.MaxObjects <= 0 {
		opt.MaxObjects = 3
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = 1 << 20
	}

	objs, err := store.List(ctx, "")
	if err != nil {
		return Result{}, fmt.Errorf("probe: list: %w", err)
	}

	var (
		res     Result
		headers []string
		seen    = map[string]int{}
		values  [][]string
	)
	for _, o := range objs {
		if res.Objects == opt.MaxObjects {
			break
		}
		if skip(o.Key) {
			continue
		}
		if res.Objects == 0 {
			res.PartitionKeys = partitionKeys(o.Key)
		}
		sample, err := peek(ctx, store, o.Key, opt.MaxBytes)
		if err != nil {
			return Result{}, err
		}

		var recs []map[string]string
		var order []string
		switch strings.ToLower(format) {
		case "json":
			order, recs = sampleJSON(sample)
		case "csv":
			order, recs = sampleCSV(sample, opt.Parser.Rune("comma", ','), opt.Parser.Bool("has_header", true))
		default:
			return Result{}, fmt.Errorf("probe: unsupported format %q", format)
		}
		for _, h := range order {
			if _, ok := seen[h]; !ok {
				seen[h] = len(headers)
				headers = append(headers, h)
				values = append(values, nil)
			}
		}
		for _, r := range recs {
			for k, v := range r {
				i := seen[k]
				values[i] = append(values[i], v)
			}
		}
		res.Records += len(recs)
		res.Objects++
	}
	if res.Objects == 0 {
		return Result{}, errors.New("probe: no data objects under location")
	}
	if len(headers) == 0 {
		return Result{}, errors.New("probe: no fields found in sample")
	}

	res.Columns = make([]catalog.Column, len(headers))
	for i, h := range headers {
		res.Columns[i] = catalog.Column{Name: h, Type: inferTypeForColumn(values[i])}
	}
	return res, nil
}

func skip(key string) bool {
	if strings.HasSuffix(key, "/") {
		return true
	}
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, "_") || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// partitionKeys names the directories of key: Hive "k=v" segments give k,
// plain directories give partition_0, partition_1, ...
func partitionKeys(key string) []string {
	segs := strings.Split(key, "/")
	segs = segs[:len(segs)-1]
	if len(segs) == 0 {
		return nil
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		if k, _, ok := strings.Cut(s, "="); ok && k != "" {
			out[i] = builtin.CanonicalName(k)
			continue
		}
		out[i] = "partition_" + strconv.Itoa(i)
	}
	return out
}

// peek reads up to n bytes of key, cut back to the last full line.
func peek(ctx context.Context, store objstore.Store, key string, n int) ([]byte, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("probe: open %s: %w", key, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, int64(n))); err != nil {
		return nil, fmt.Errorf("probe: read %s: %w", key, err)
	}
	b := buf.Bytes()
	if len(b) == n {
		if i := bytes.LastIndexByte(b, '\n'); i > 0 {
			b = b[:i+1]
		}
	}
	return b, nil
}

// sampleJSON decodes JSON lines; malformed lines are skipped. Nested objects
// and arrays are kept as their JSON text. New keys are ordered by canonical
// name within the line that introduces them.
func sampleJSON(sample []byte) ([]string, []map[string]string) {
	var (
		order []string
		seen  = map[string]bool{}
		recs  []map[string]string
	)
	sc := bufio.NewScanner(bytes.NewReader(sample))
	sc.Buffer(make([]byte, 0, 64*1024), len(sample)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		rec := make(map[string]string, len(obj))
		for k, v := range obj {
			rec[builtin.CanonicalName(k)] = stringify(v)
		}
		names := make([]string, 0, len(rec))
		for name := range rec {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
		recs = append(recs, rec)
	}
	return order, recs
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// sampleCSV reads the header (or names columns col_0..n without one) and the
// rows whose width matches it.
func sampleCSV(sample []byte, comma rune, hasHeader bool) ([]string, []map[string]string) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(sample, []byte("\xef\xbb\xbf"))))
	r.Comma = comma
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var headers []string
	var recs []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) == 0 {
			continue
		}
		if headers == nil {
			if hasHeader {
				for _, h := range rec {
					headers = append(headers, builtin.CanonicalName(h))
				}
				continue
			}
			for i := range rec {
				headers = append(headers, "col_"+strconv.Itoa(i))
			}
		}
		if len(rec) != len(headers) {
			continue
		}
		m := make(map[string]string, len(rec))
		for i, v := range rec {
			m[headers[i]] = v
		}
		recs = append(recs, m)
	}
	return headers, recs
}

// inferTypeForColumn picks the narrowest crawler type that every non-empty
// value satisfies: bigint, double, boolean, timestamp, date, else string.
func inferTypeForColumn(values []string) string {
	nonEmpty := nonEmptyTrimmed(values)
	if len(nonEmpty) == 0 {
		return "string"
	}
	if allMatch(nonEmpty, isInt) {
		return "bigint"
	}
	if allMatch(nonEmpty, isFloat) {
		return "double"
	}
	if allMatch(nonEmpty, isBool) {
		return "boolean"
	}
	allDate, anyTime := true, false
	for _, v := range nonEmpty {
		ok, hasTime := parseDateOrTimestamp(v)
		if !ok {
			allDate = false
			break
		}
		anyTime = anyTime || hasTime
	}
	if allDate {
		if anyTime {
			return "timestamp"
		}
		return "date"
	}
	return "string"
}

func nonEmptyTrimmed(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloat accepts integers, decimals and scientific notation, but not the
// NaN and Inf spellings ParseFloat also understands.
func isFloat(s string) bool {
	if strings.ContainsAny(s, "nNiI") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parseDateOrTimestamp(s string) (ok bool, hasTime bool) {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true, true
		}
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true, false
		}
	}
	return false, false
}
