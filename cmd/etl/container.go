// Package main wires the events job end to end: catalog reader, transform
// workers and catalog writer, connected by bounded channels of pooled rows.
// This file keeps the CLI layer thin; it depends on the catalog, objstore
// and notify registries and never on a concrete backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecommetl/internal/catalog"
	"ecommetl/internal/config"
	"ecommetl/internal/datasource"
	"ecommetl/internal/metrics"
	"ecommetl/internal/notify"
	"ecommetl/internal/objstore"
	"ecommetl/internal/storage"
	"ecommetl/internal/transformer"
	"ecommetl/internal/transformer/builtin"
)

const (
	// errSamples is how many distinct error messages each aggregator keeps.
	errSamples = 5
	// progressEvery is the writer progress log interval, in rows.
	progressEvery = 100_000
)

// Function variables used as test seams.
var (
	openCatalogFn  = catalog.Open
	resolveStoreFn = objstore.Resolve
	newPublisherFn = notify.New
	newRunIDFn     = uuid.NewString
)

// counters holds cross-goroutine statistics for one run.
type counters struct {
	read        atomic.Int64 // rows emitted by the reader
	parseErrors atomic.Int64 // records the parser could not turn into rows
	rejected    atomic.Int64 // rows dropped by the transform stage
	nulled      atomic.Int64 // rows kept with one or more nulled fields
	deduped     atomic.Int64 // rows dropped as repeated event_id
	written     atomic.Int64 // rows handed to the writer
}

// runOptions are per-invocation switches that do not belong in the job file.
type runOptions struct {
	// DryRun reads and transforms but writes nothing and touches no catalog
	// state besides reading the source table.
	DryRun bool
	// SpoolDir overrides the writer's temp directory.
	SpoolDir string
}

// Summary is the outcome of one run.
type Summary struct {
	RunID       string
	Status      string
	Read        int64
	ParseErrors int64
	Rejected    int64
	Nulled      int64
	Deduped     int64
	Written     int64
	Objects     int
	InputBytes  int64
	Commit      storage.CommitResult
	ErrorsPath  string
	Elapsed     time.Duration
}

// runJob executes one run of job: resolve the source table, stream it
// through the transform workers into the writer, then commit partitions and
// catalog state. Any error fails the run; nothing is retried.
func runJob(ctx context.Context, job config.Job, opt runOptions, log *zap.Logger) (sum Summary, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()
	sum.RunID = newRunIDFn()
	log = log.With(zap.String("job", job.Job), zap.String("run_id", sum.RunID))

	cat, err := openCatalogFn(ctx, job.Catalog)
	if err != nil {
		return sum, err
	}
	defer cat.Close()

	run := catalog.Run{ID: sum.RunID, Job: job.Job, Status: catalog.RunRunning, StartedAt: start.UTC()}
	if !opt.DryRun {
		if err := cat.StartRun(ctx, run); err != nil {
			return sum, fmt.Errorf("start run: %w", err)
		}
		defer func() {
			run.FinishedAt = time.Now().UTC()
			run.Read, run.Written, run.Rejected = sum.Read, sum.Written, sum.Rejected
			run.Nulled, run.Deduped = sum.Nulled, sum.Deduped
			run.Status = catalog.RunSucceeded
			if err != nil {
				run.Status = catalog.RunFailed
				run.Error = err.Error()
			}
			sum.Status = run.Status
			// The run context may already be canceled; the ledger must still
			// record the failure.
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if ferr := cat.FinishRun(fctx, run); ferr != nil {
				log.Error("finish run", zap.Error(ferr))
				if err == nil {
					err = fmt.Errorf("finish run: %w", ferr)
				}
			}
			if err == nil {
				publish(fctx, job, run, sum, log)
			}
		}()
	}

	err = execute(ctx, job, opt, cat, &sum, log)
	sum.Elapsed = time.Since(start)
	recordRunMetrics(job.Job, sum)
	logSummary(log, sum)
	return sum, err
}

// execute runs the read/transform/write stages and the commit.
func execute(ctx context.Context, job config.Job, opt runOptions, cat catalog.Catalog, sum *Summary, log *zap.Logger) error {
	var stats counters
	defer func() {
		sum.Read = stats.read.Load()
		sum.ParseErrors = stats.parseErrors.Load()
		sum.Rejected = stats.rejected.Load()
		sum.Nulled = stats.nulled.Load()
		sum.Deduped = stats.deduped.Load()
		sum.Written = stats.written.Load()
	}()

	// 1) Resolve source.
	t0 := time.Now()
	ds, err := datasource.ReadTable(ctx, cat, job.Source.Database, job.Source.Table, datasource.Options{
		ObjStore: job.ObjStore,
		Parser:   job.Source.Options,
		Logger:   log,
	})
	metrics.RecordStep(job.Job, "resolve", err, time.Since(t0))
	if err != nil {
		return err
	}
	log.Info("source resolved",
		zap.String("table", ds.Table.FQN()),
		zap.String("location", ds.Table.Location),
		zap.String("format", ds.Table.Format),
		zap.Int("columns", len(ds.Columns)))

	tr, err := newTransformer(job, ds.Columns)
	if err != nil {
		return err
	}

	// 2) Sinks: partitioned writer and rejects file.
	var (
		w       *storage.Writer
		rejects *storage.RejectsWriter
	)
	if !opt.DryRun {
		store, err := resolveStoreFn(ctx, job.Sink.Path, job.ObjStore)
		if err != nil {
			return fmt.Errorf("resolve sink %s: %w", job.Sink.Path, err)
		}
		wo := storage.OptionsFromSink(job.Sink)
		wo.SpoolDir = opt.SpoolDir
		w, err = storage.NewWriter(store, cat, wo, log)
		if err != nil {
			return err
		}
		defer w.Abort()

		if job.Sink.ErrorsPath != "" {
			es, err := resolveStoreFn(ctx, job.Sink.ErrorsPath, job.ObjStore)
			if err != nil {
				return fmt.Errorf("resolve errors path %s: %w", job.Sink.ErrorsPath, err)
			}
			rejects = storage.NewRejectsWriter(es, sum.RunID)
		}
	}

	// 3) Stream.
	t0 = time.Now()
	st, err := stream(ctx, job, ds, tr, w, rejects, &stats, log)
	metrics.RecordStep(job.Job, "transform", err, time.Since(t0))
	sum.Objects, sum.InputBytes = st.Objects, st.Bytes
	if err != nil {
		return err
	}
	if opt.DryRun {
		return nil
	}

	// 4) Commit.
	t0 = time.Now()
	sum.Commit, err = w.Commit(ctx)
	metrics.RecordStep(job.Job, "commit", err, time.Since(t0))
	if err != nil {
		return err
	}
	if rejects != nil {
		sum.ErrorsPath, err = rejects.Flush(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// newTransformer compiles the transform stage from the job file.
func newTransformer(job config.Job, columns []string) (*transformer.Transformer, error) {
	policy, err := transformer.ParsePolicy(job.Transform.OnError)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(job.Transform.Timezone)
	if err != nil {
		return nil, fmt.Errorf("transform timezone: %w", err)
	}
	norm := job.Transform.NormalizeStrings == nil || *job.Transform.NormalizeStrings
	return transformer.New(transformer.Options{
		Columns:           columns,
		Policy:            policy,
		TimestampLayouts:  job.Transform.TimestampLayouts,
		Location:          loc,
		NormalizeStrings:  norm,
		PartitionKeys:     job.Sink.PartitionKeys,
		PartitionFallback: job.Source.PartitionFallback == "timestamp",
	})
}

// stream runs the concurrent stages under one errgroup:
//
//	Reader → tap (counts read) → [dedup] → N transformers → writer
//
// Bounded channels apply back-pressure. The first stage error cancels the
// rest; a fatal coercion error under fail_job is such an error.
func stream(
	ctx context.Context,
	job config.Job,
	ds *datasource.Dataset,
	tr *transformer.Transformer,
	w *storage.Writer,
	rejects *storage.RejectsWriter,
	stats *counters,
	log *zap.Logger,
) (datasource.Stats, error) {
	workers := job.Runtime.TransformWorkers
	if workers <= 0 {
		workers = 4
	}
	buf := job.Runtime.ChannelBuffer
	if buf <= 0 {
		buf = 1024
	}
	log.Info("stream runtime", zap.Int("transformers", workers), zap.Int("buffer", buf),
		zap.String("on_error", tr.Policy().String()), zap.Bool("dedupe", job.Transform.Dedupe))

	parseAgg := newErrAgg(errSamples)
	rejectAgg := newErrAgg(errSamples)
	defer func() { logErrSummaries(log, parseAgg, rejectAgg) }()

	g, gctx := errgroup.WithContext(ctx)

	rawCh := make(chan *transformer.Row, buf)
	tapCh := make(chan *transformer.Row, buf)
	outCh := make(chan *transformer.Row, buf)

	// Reader.
	var st datasource.Stats
	g.Go(func() error {
		defer close(rawCh)
		var err error
		st, err = ds.Stream(gctx, rawCh, func(source string, line int, err error) {
			stats.parseErrors.Add(1)
			parseAgg.add(err.Error())
			addReject(rejects, log, storage.RejectRecord{
				Kind: storage.KindParse, Source: source, Line: line, Reasons: []string{err.Error()},
			})
		})
		return err
	})

	// Tap: count rows entering the transform stage.
	g.Go(func() error {
		defer close(tapCh)
		for r := range rawCh {
			stats.read.Add(1)
			select {
			case tapCh <- r:
			case <-gctx.Done():
				r.Free()
			}
		}
		return nil
	})

	transformIn := (<-chan *transformer.Row)(tapCh)
	if job.Transform.Dedupe {
		dedupCh := make(chan *transformer.Row, buf)
		transformIn = dedupCh
		d := builtin.NewDeDup(buf)
		g.Go(func() error {
			defer close(dedupCh)
			transformer.DedupLoopRows(gctx, tr, d, tapCh, dedupCh, func(*transformer.Row) {
				stats.deduped.Add(1)
			})
			return nil
		})
	}

	// Transformers.
	onOutcome := func(r *transformer.Row, o transformer.Outcome, err error) {
		if err != nil {
			stats.rejected.Add(1)
			rec := storage.RejectRecord{Kind: storage.KindRejected, Source: r.Source, Line: r.Line, Raw: rawMap(ds.Columns, r.V)}
			var ce *transformer.CoercionError
			if errors.As(err, &ce) {
				rec.Reasons = ce.Reasons()
			} else {
				rec.Reasons = []string{err.Error()}
			}
			for _, reason := range rec.Reasons {
				rejectAgg.add(reason)
			}
			addReject(rejects, log, rec)
			return
		}
		stats.nulled.Add(1)
		rec := storage.RejectRecord{Kind: storage.KindNulled, Source: r.Source, Line: r.Line, Raw: rawMap(ds.Columns, r.V)}
		for _, fe := range o.Nulled {
			reason := fe.Field + ": " + fe.Err.Error()
			rec.Reasons = append(rec.Reasons, reason)
			rejectAgg.add(reason)
		}
		addReject(rejects, log, rec)
	}

	var wgTransform sync.WaitGroup
	wgTransform.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer wgTransform.Done()
			return transformer.TransformLoopRows(gctx, tr, transformIn, outCh, onOutcome)
		})
	}
	go func() {
		wgTransform.Wait()
		close(outCh)
	}()

	// Writer.
	g.Go(func() error {
		if w == nil {
			for r := range outCh {
				stats.written.Add(1)
				r.Free()
			}
			return nil
		}
		n, err := storage.WriteLoopRows(gctx, outCh, w, progressEvery, log)
		stats.written.Add(n)
		return err
	})

	err := g.Wait()
	return st, err
}

// rawMap pairs raw values with their column names for the rejects file.
func rawMap(columns []string, v []any) map[string]any {
	m := make(map[string]any, len(columns))
	for i, c := range columns {
		if i < len(v) && v[i] != nil {
			m[c] = v[i]
		}
	}
	return m
}

func addReject(w *storage.RejectsWriter, log *zap.Logger, rec storage.RejectRecord) {
	if w == nil {
		return
	}
	if err := w.Add(rec); err != nil {
		log.Warn("rejects: dropping record", zap.String("source", rec.Source), zap.Int("line", rec.Line), zap.Error(err))
	}
}

// publish sends the completion message. A failed publish is logged and does
// not fail a run whose data is already committed.
func publish(ctx context.Context, job config.Job, run catalog.Run, sum Summary, log *zap.Logger) {
	p, err := newPublisherFn(ctx, job.Notify, log)
	if err != nil {
		log.Warn("notify: init publisher", zap.Error(err))
		return
	}
	parts := make([]string, len(sum.Commit.Partitions))
	for i, pr := range sum.Commit.Partitions {
		parts[i] = objstore.DirPrefix(job.Sink.PartitionKeys, pr.Values)
	}
	table := job.Sink.Database + "." + job.Sink.Table
	msg := notify.NewRunCompleted(run, table, job.Sink.Path, parts, sum.ErrorsPath)
	if err := p.Publish(ctx, msg); err != nil {
		log.Warn("notify: publish", zap.Error(err))
	}
}

func recordRunMetrics(job string, s Summary) {
	metrics.RecordRow(job, metrics.KindRead, s.Read)
	metrics.RecordRow(job, metrics.KindParseErrors, s.ParseErrors)
	metrics.RecordRow(job, metrics.KindRejected, s.Rejected)
	metrics.RecordRow(job, metrics.KindNulled, s.Nulled)
	metrics.RecordRow(job, metrics.KindDeduped, s.Deduped)
	metrics.RecordRow(job, metrics.KindWritten, s.Written)
	metrics.RecordFiles(job, s.Commit.Files, s.Commit.Bytes)
}

// logSummary prints the end-of-run statistics and checks row accounting:
//
//	read == written + rejected + deduped
//
// Nulled rows are a subset of written.
func logSummary(log *zap.Logger, s Summary) {
	log.Info("summary",
		zap.Int64("read", s.Read),
		zap.Int64("parse_errors", s.ParseErrors),
		zap.Int64("rejected", s.Rejected),
		zap.Int64("nulled", s.Nulled),
		zap.Int64("deduped", s.Deduped),
		zap.Int64("written", s.Written),
		zap.Int("objects", s.Objects),
		zap.String("input", humanize.Bytes(uint64(s.InputBytes))),
		zap.Int("partitions", len(s.Commit.Partitions)),
		zap.Int("files", s.Commit.Files),
		zap.String("output", humanize.Bytes(uint64(s.Commit.Bytes))),
		zap.String("errors_path", s.ErrorsPath),
		zap.Duration("elapsed", s.Elapsed.Truncate(time.Millisecond)))

	if accounted := s.Written + s.Rejected + s.Deduped; accounted != s.Read {
		log.Warn("row accounting mismatch",
			zap.Int64("read", s.Read),
			zap.Int64("accounted", accounted),
			zap.Int64("delta", s.Read-accounted))
	}
}

// errAgg keeps a count and the first few distinct messages of one error
// class.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.buckets[msg] == 0 && len(a.first) < a.limit {
		a.first = append(a.first, msg)
	}
	a.buckets[msg]++
	a.count++
	a.mu.Unlock()
}

func logErrSummaries(log *zap.Logger, parseAgg, rejectAgg *errAgg) {
	for _, x := range []struct {
		name string
		agg  *errAgg
	}{{"parse errors", parseAgg}, {"transform issues", rejectAgg}} {
		if x.agg.count == 0 {
			continue
		}
		log.Warn(x.name, zap.Int("count", x.agg.count), zap.Int("distinct", len(x.agg.buckets)))
		for i, s := range x.agg.first {
			log.Warn(fmt.Sprintf("  #%03d", i+1), zap.String("sample", s), zap.Int("seen", x.agg.buckets[s]))
		}
	}
}
