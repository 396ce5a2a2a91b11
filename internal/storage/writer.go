// Package storage is the catalog writer: it writes processed events as
// partitioned Parquet files and registers the partitions in the catalog.
//
// Rows are spooled per partition into local temp files while the job runs.
// Commit then replaces each touched partition directory in the object store
// and registers the partitions in one catalog transaction, so rerunning a
// job over the same input leaves the same partitions, record counts and
// checksums behind. Row order within a file follows arrival order and is
// not stable across runs; the partition checksum does not depend on it.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"ecommetl/internal/catalog"
	"ecommetl/internal/config"
	"ecommetl/internal/objstore"
	"ecommetl/internal/schema"
)

// writeBatch is how many rows a partition buffers before handing them to the
// Parquet writer.
const writeBatch = 256

// WriteOptions configures a Writer.
type WriteOptions struct {
	Database       string
	Table          string
	PartitionKeys  []string
	Compression    string
	RowsPerFile    int
	UpdateBehavior string

	// SpoolDir holds temp files until Commit. Empty means os.TempDir().
	SpoolDir string
}

// OptionsFromSink builds WriteOptions from the job's sink block.
func OptionsFromSink(s config.Sink) WriteOptions {
	return WriteOptions{
		Database:       s.Database,
		Table:          s.Table,
		PartitionKeys:  s.PartitionKeys,
		Compression:    s.Compression,
		RowsPerFile:    s.RowsPerFile,
		UpdateBehavior: s.UpdateBehavior,
	}
}

// PartitionResult describes one committed partition.
type PartitionResult struct {
	Values   []string
	Location string
	Files    []string
	Records  int64
	Bytes    int64
	Checksum string
	// Replaced is how many pre-existing objects were deleted.
	Replaced int
}

// CommitResult summarizes a Commit.
type CommitResult struct {
	Partitions []PartitionResult
	Files      int
	Records    int64
	Bytes      int64
}

// Writer accumulates events per partition and commits them. It is not safe
// for concurrent use; the job feeds it from a single goroutine.
type Writer struct {
	store objstore.Store
	cat   catalog.Catalog
	opt   WriteOptions
	codec compress.Codec
	ext   string
	log   *zap.Logger

	parts map[string]*partition
	h     *xxh3.Hasher
	done  bool
}

// spoolFile is one finished, not yet uploaded, Parquet file.
type spoolFile struct {
	path string
	size int64
	rows int64
}

type partition struct {
	values []string
	prefix string

	files   []spoolFile
	records int64
	// sum is the wrapping sum of the rows' digests.
	sum uint64

	f       *os.File
	cw      *countingWriter
	pw      *parquet.GenericWriter[eventRow]
	pending []eventRow
	curRows int64
}

// NewWriter returns a Writer that commits into store and registers in cat.
func NewWriter(store objstore.Store, cat catalog.Catalog, opt WriteOptions, log *zap.Logger) (*Writer, error) {
	c, ext, err := codec(opt.Compression)
	if err != nil {
		return nil, err
	}
	if len(opt.PartitionKeys) == 0 {
		return nil, fmt.Errorf("storage: at least one partition key is required")
	}
	if opt.Database == "" || opt.Table == "" {
		return nil, fmt.Errorf("storage: database and table are required")
	}
	if opt.RowsPerFile <= 0 {
		opt.RowsPerFile = 1_000_000
	}
	if opt.SpoolDir == "" {
		opt.SpoolDir = os.TempDir()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		store: store,
		cat:   cat,
		opt:   opt,
		codec: c,
		ext:   ext,
		log:   log.With(zap.String("table", opt.Database+"."+opt.Table)),
		parts: map[string]*partition{},
		h:     xxh3.New(),
	}, nil
}

// Add appends e to the partition named by values, which align with the
// partition keys.
func (w *Writer) Add(e schema.Event, values []string) error {
	if w.done {
		return fmt.Errorf("storage: writer already committed or aborted")
	}
	if len(values) != len(w.opt.PartitionKeys) {
		return fmt.Errorf("storage: got %d partition values for keys %v", len(values), w.opt.PartitionKeys)
	}
	prefix := objstore.DirPrefix(w.opt.PartitionKeys, values)
	p, ok := w.parts[prefix]
	if !ok {
		p = &partition{
			values: append([]string(nil), values...),
			prefix: prefix,
		}
		w.parts[prefix] = p
	}
	r := toRow(e)
	p.pending = append(p.pending, r)
	p.sum += rowDigest(w.h, r)
	p.records++
	p.curRows++
	if len(p.pending) >= writeBatch {
		if err := w.flush(p); err != nil {
			return err
		}
	}
	if p.curRows >= int64(w.opt.RowsPerFile) {
		return w.roll(p)
	}
	return nil
}

// Records returns how many events have been added.
func (w *Writer) Records() int64 {
	var n int64
	for _, p := range w.parts {
		n += p.records
	}
	return n
}

func (w *Writer) flush(p *partition) error {
	if len(p.pending) == 0 {
		return nil
	}
	if p.pw == nil {
		f, err := os.CreateTemp(w.opt.SpoolDir, "etl-part-*.parquet")
		if err != nil {
			return fmt.Errorf("storage: spool: %w", err)
		}
		p.f = f
		p.cw = &countingWriter{w: f}
		p.pw = parquet.NewGenericWriter[eventRow](p.cw, parquet.Compression(w.codec))
	}
	if _, err := p.pw.Write(p.pending); err != nil {
		return fmt.Errorf("storage: write %s: %w", p.prefix, err)
	}
	clear(p.pending)
	p.pending = p.pending[:0]
	return nil
}

// roll closes the partition's current file.
func (w *Writer) roll(p *partition) error {
	if err := w.flush(p); err != nil {
		return err
	}
	if p.pw == nil {
		return nil
	}
	err := p.pw.Close()
	if cerr := p.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("storage: close %s: %w", p.prefix, err)
	}
	p.files = append(p.files, spoolFile{path: p.f.Name(), size: p.cw.n, rows: p.curRows})
	p.f, p.cw, p.pw = nil, nil, nil
	p.curRows = 0
	return nil
}

// Commit uploads every partition and registers it in the catalog.
//
// For each touched partition, in key order, everything under the partition
// directory is deleted and the new files are written with deterministic
// names (part-00000<ext>, part-00001<ext>, ...). Partitions not touched by
// this run are left alone. The catalog is updated last, in one transaction;
// with update_behavior UPDATE_IN_DATABASE the table definition is replaced,
// with LOG it is only created when missing.
func (w *Writer) Commit(ctx context.Context) (CommitResult, error) {
	if w.done {
		return CommitResult{}, fmt.Errorf("storage: writer already committed or aborted")
	}
	defer w.cleanup()

	keys := make([]string, 0, len(w.parts))
	for k, p := range w.parts {
		if err := w.roll(p); err != nil {
			return CommitResult{}, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var res CommitResult
	parts := make([]catalog.Partition, 0, len(keys))
	for _, k := range keys {
		p := w.parts[k]
		pr, err := w.upload(ctx, p)
		if err != nil {
			return res, err
		}
		res.Partitions = append(res.Partitions, pr)
		res.Files += len(pr.Files)
		res.Records += pr.Records
		res.Bytes += pr.Bytes
		parts = append(parts, catalog.Partition{
			Values:   pr.Values,
			Location: pr.Location,
			Records:  pr.Records,
			Files:    len(pr.Files),
			Bytes:    pr.Bytes,
			Checksum: pr.Checksum,
		})
		w.log.Info("partition written",
			zap.String("partition", k),
			zap.Int("files", len(pr.Files)),
			zap.Int64("records", pr.Records),
			zap.String("size", humanize.Bytes(uint64(pr.Bytes))),
			zap.Int("replaced", pr.Replaced))
	}

	if err := w.cat.EnsureDatabase(ctx, w.opt.Database); err != nil {
		return res, fmt.Errorf("storage: ensure database %s: %w", w.opt.Database, err)
	}
	updateSchema := w.opt.UpdateBehavior != config.UpdateLog
	if err := w.cat.CommitPartitions(ctx, w.table(), parts, updateSchema); err != nil {
		return res, fmt.Errorf("storage: register partitions: %w", err)
	}
	return res, nil
}

func (w *Writer) upload(ctx context.Context, p *partition) (PartitionResult, error) {
	pr := PartitionResult{
		Values:   p.values,
		Location: w.store.URL(p.prefix),
		Records:  p.records,
		Checksum: fmt.Sprintf("%016x", p.sum),
	}
	n, err := w.store.DeletePrefix(ctx, p.prefix)
	if err != nil {
		return pr, fmt.Errorf("storage: clear %s: %w", pr.Location, err)
	}
	pr.Replaced = n

	for i, sf := range p.files {
		key := fmt.Sprintf("%spart-%05d%s", p.prefix, i, w.ext)
		f, err := os.Open(sf.path)
		if err != nil {
			return pr, fmt.Errorf("storage: reopen spool: %w", err)
		}
		err = w.store.Put(ctx, key, f, sf.size)
		f.Close()
		if err != nil {
			return pr, fmt.Errorf("storage: put %s: %w", key, err)
		}
		pr.Files = append(pr.Files, key)
		pr.Bytes += sf.size
	}
	return pr, nil
}

// table is the catalog definition of the output table.
func (w *Writer) table() catalog.Table {
	cols := make([]catalog.Column, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = catalog.Column{Name: f.Name, Type: f.Type}
	}
	return catalog.Table{
		Database:      w.opt.Database,
		Name:          w.opt.Table,
		Location:      w.store.URL(""),
		Format:        "parquet",
		Compression:   w.opt.Compression,
		Columns:       cols,
		PartitionKeys: w.opt.PartitionKeys,
		Parameters: map[string]string{
			"classification":  "parquet",
			"compressionType": w.opt.Compression,
		},
	}
}

// Abort discards everything added so far. Nothing in the object store or
// catalog is touched.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.cleanup()
}

func (w *Writer) cleanup() {
	w.done = true
	for _, p := range w.parts {
		if p.pw != nil {
			_ = p.pw.Close()
		}
		if p.f != nil {
			_ = p.f.Close()
			_ = os.Remove(p.f.Name())
		}
		for _, sf := range p.files {
			_ = os.Remove(sf.path)
		}
	}
	w.parts = nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
