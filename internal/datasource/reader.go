// Package datasource is the catalog reader: it resolves a raw table through
// the catalog and streams every record of every object under the table's
// location into the pipeline.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"ecommetl/internal/catalog"
	"ecommetl/internal/config"
	"ecommetl/internal/objstore"
	"ecommetl/internal/parser"
	"ecommetl/internal/transformer"
)

// ErrSourceResolution wraps every failure to resolve the source table or its
// storage location. It is fatal for the run.
var ErrSourceResolution = errors.New("source resolution failed")

// resolveStore is a test seam.
var resolveStore = objstore.Resolve

// Options configures ReadTable.
type Options struct {
	ObjStore config.ObjStore
	// Parser options; table parameters fill keys left unset here.
	Parser config.Options
	Logger *zap.Logger
}

// Dataset is a resolved raw table ready to stream.
type Dataset struct {
	Table   catalog.Table
	Columns []string

	store  objstore.Store
	parser config.Options
	log    *zap.Logger
}

// Stats summarizes one Stream call.
type Stats struct {
	Objects int
	Skipped int
	Bytes   int64
}

// ReadTable looks up database.table in cat and opens the store behind its
// location. Every error matches ErrSourceResolution.
func ReadTable(ctx context.Context, cat catalog.Catalog, database, table string, opt Options) (*Dataset, error) {
	fail := func(err error) (*Dataset, error) {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrSourceResolution, database, table, err)
	}

	t, err := cat.GetTable(ctx, database, table)
	if err != nil {
		return fail(err)
	}
	if len(t.Columns) == 0 {
		return fail(errors.New("table has no columns"))
	}
	if !parser.Supported(t.Format) {
		return fail(fmt.Errorf("unsupported table format %q (want one of %v)", t.Format, parser.Formats))
	}
	if strings.TrimSpace(t.Location) == "" {
		return fail(errors.New("table has no location"))
	}
	store, err := resolveStore(ctx, t.Location, opt.ObjStore)
	if err != nil {
		return fail(err)
	}

	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dataset{
		Table:   t,
		Columns: t.ColumnNames(),
		store:   store,
		parser:  ParserOptions(t, opt.Parser),
		log:     log.With(zap.String("table", t.FQN())),
	}, nil
}

// ParserOptions overlays the crawler's table parameters under the job's
// explicit parser options.
func ParserOptions(t catalog.Table, job config.Options) config.Options {
	out := config.Options{}
	if d := t.Parameters["delimiter"]; d != "" {
		out["comma"] = d
	}
	if n := t.Parameters["skip.header.line.count"]; n != "" {
		out["has_header"] = n != "0"
	}
	for k, v := range job {
		out[k] = v
	}
	return out
}

// Stream reads every data object under the table location in key order and
// sends its records to out as pooled rows. Keys with a path segment starting
// with "_" or "." (markers, temp dirs, checksums) are skipped. Recoverable
// record errors go to onParseErr; an object that cannot be listed, opened or
// read further stops the stream.
//
// Stream does not close out.
func (d *Dataset) Stream(
	ctx context.Context,
	out chan<- *transformer.Row,
	onParseErr func(source string, line int, err error),
) (Stats, error) {
	var st Stats
	objs, err := d.store.List(ctx, "")
	if err != nil {
		return st, fmt.Errorf("list %s: %w", d.Table.Location, err)
	}

	for _, o := range objs {
		if hidden(o.Key) {
			st.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}

		origin := transformer.Origin{
			Source:    d.store.URL(o.Key),
			Partition: PartitionValues(o.Key, d.Table.PartitionKeys),
		}
		src, err := d.store.Open(ctx, o.Key)
		if err != nil {
			return st, fmt.Errorf("open %s: %w", origin.Source, err)
		}
		src, err = decompress(o.Key, src)
		if err != nil {
			return st, fmt.Errorf("open %s: %w", origin.Source, err)
		}

		d.log.Debug("reading object",
			zap.String("source", origin.Source),
			zap.Int64("bytes", o.Size),
			zap.Any("partition", origin.Partition))

		var onErr func(int, error)
		if onParseErr != nil {
			onErr = func(line int, err error) { onParseErr(origin.Source, line, err) }
		}
		if err := parser.Stream(ctx, d.Table.Format, src, origin, d.Columns, d.parser, out, onErr); err != nil {
			return st, fmt.Errorf("read %s: %w", origin.Source, err)
		}
		st.Objects++
		st.Bytes += o.Size
	}
	if st.Objects == 0 {
		// A missing local directory lists as empty.
		d.log.Warn("no data objects under table location",
			zap.String("location", d.Table.Location),
			zap.Int("skipped", st.Skipped))
	}
	return st, nil
}

func hidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, "_") || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// decompress wraps src by file extension (.gz, .zst).
func decompress(key string, src io.ReadCloser) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(key, ".gz"):
		zr, err := gzip.NewReader(src)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &stacked{Reader: zr, closers: []io.Closer{zr, src}}, nil
	case strings.HasSuffix(key, ".zst"):
		zr, err := zstd.NewReader(src)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return &stacked{Reader: zr, closers: []io.Closer{closerFunc(zr.Close), src}}, nil
	}
	return src, nil
}

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

// stacked closes a decoder and the object under it.
type stacked struct {
	io.Reader
	closers []io.Closer
}

func (s *stacked) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
