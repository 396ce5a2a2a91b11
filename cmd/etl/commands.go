package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecommetl/internal/catalog"
	"ecommetl/internal/config"
	"ecommetl/internal/datasource"
	"ecommetl/internal/logger"
	"ecommetl/internal/metrics"
	"ecommetl/internal/metrics/datadog"
	"ecommetl/internal/metrics/prompush"
	"ecommetl/internal/objstore"
	"ecommetl/internal/probe"
)

// rawColumns is the column list the raw events table is registered with
// when --columns is not given.
var rawColumns = []string{
	"event_id", "timestamp", "user_id", "session_id", "event_type", "page_url",
	"product_id", "category", "price", "quantity", "payment_method", "browser", "os",
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "etl",
		Short: "Batch job turning raw e-commerce events into partitioned Parquet",
		Long: `etl reads the raw events table registered in the metadata catalog,
casts and projects every record, and writes the processed events as
partitioned Parquet files registered back into the catalog.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/jobs/ecommerce_raw_to_processed.json", "job config JSON path")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newValidateCmd(&cfgPath),
		newCatalogCmd(&cfgPath),
	)
	return root
}

// loadJob loads the job file and fails on validation errors. Every issue is
// printed to the command's stderr.
func loadJob(cmd *cobra.Command, path string) (config.Job, error) {
	job, err := config.Load(path)
	if err != nil {
		return job, err
	}
	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return job, fmt.Errorf("configuration is invalid: %s", path)
	}
	return job, nil
}

func newLogger(job config.Job) (*zap.Logger, error) {
	return logger.New(job.Log.Environment, job.Log.Level)
}

func newRunCmd(cfgPath *string) *cobra.Command {
	var (
		dryRun   bool
		spoolDir string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the raw-to-processed job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := loadJob(cmd, *cfgPath)
			if err != nil {
				return err
			}
			log, err := newLogger(job)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			flush, err := setupMetrics(job, log)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := runJob(ctx, job, runOptions{DryRun: dryRun, SpoolDir: spoolDir}, log)
			if err != nil {
				log.Error("run failed", zap.String("run_id", sum.RunID), zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: read=%d written=%d rejected=%d nulled=%d deduped=%d partitions=%d files=%d\n",
				sum.RunID, sum.Read, sum.Written, sum.Rejected, sum.Nulled, sum.Deduped,
				len(sum.Commit.Partitions), sum.Commit.Files)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "read and transform only; write nothing")
	cmd.Flags().StringVar(&spoolDir, "spool-dir", "", "directory for temp Parquet files (default: system temp)")
	return cmd
}

func newValidateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the job config and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadJob(cmd, *cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", *cfgPath)
			return nil
		},
	}
}

func newCatalogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain the metadata catalog",
	}
	cmd.AddCommand(
		newCatalogInitCmd(cfgPath),
		newCatalogRegisterCmd(cfgPath),
		newCatalogPartitionsCmd(cfgPath),
	)
	return cmd
}

// withCatalog loads the job and opens its catalog for the duration of fn.
func withCatalog(cmd *cobra.Command, cfgPath string, fn func(ctx context.Context, job config.Job, cat catalog.Catalog) error) error {
	job, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cat, err := openCatalogFn(ctx, job.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()
	return fn(ctx, job, cat)
}

func newCatalogInitCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the catalog tables when missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, *cfgPath, func(ctx context.Context, job config.Job, cat catalog.Catalog) error {
				if err := cat.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog %s initialized\n", job.Catalog.Kind)
				return nil
			})
		},
	}
}

func newCatalogRegisterCmd(cfgPath *string) *cobra.Command {
	var (
		database, table, location, format string
		columns, partitionKeys             []string
		params                             map[string]string
		infer                              bool
		sampleObjects                      int
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a raw table (database, location, format, columns) in the catalog",
		Long: `register records a raw table in the catalog. With --infer the objects
under --location are sampled and the column names, column types and
partition keys are taken from them; explicit --columns or
--partition-keys still win.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := objstore.ParseLocation(location); err != nil {
				return fmt.Errorf("--location: %w", err)
			}
			format = strings.ToLower(format)
			t := catalog.Table{
				Database:      database,
				Name:          table,
				Location:      location,
				Format:        format,
				PartitionKeys: partitionKeys,
				Parameters:    map[string]string{"classification": format},
			}
			for k, v := range params {
				t.Parameters[k] = v
			}
			for _, c := range columns {
				t.Columns = append(t.Columns, catalog.Column{Name: c, Type: "string"})
			}
			return withCatalog(cmd, *cfgPath, func(ctx context.Context, job config.Job, cat catalog.Catalog) error {
				if infer {
					if err := inferTable(ctx, cmd, job, &t, sampleObjects); err != nil {
						return err
					}
				}
				if err := cat.EnsureDatabase(ctx, database); err != nil {
					return err
				}
				if err := cat.UpsertTable(ctx, t); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s at %s\n", t.FQN(), t.Location)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&database, "database", "ecommerce_raw_db", "catalog database")
	f.StringVar(&table, "table", "data", "table name")
	f.StringVar(&location, "location", "", "storage location of the table objects (s3://bucket/prefix/ or a path)")
	f.StringVar(&format, "format", "json", "object format: json or csv")
	f.StringSliceVar(&columns, "columns", rawColumns, "column names")
	f.StringSliceVar(&partitionKeys, "partition-keys", []string{"year", "month", "day"}, "partition keys in path order")
	f.StringToStringVar(&params, "param", nil, "extra table parameters, e.g. delimiter=;")
	f.BoolVar(&infer, "infer", false, "sample the location to infer columns and partition keys")
	f.IntVar(&sampleObjects, "sample-objects", 3, "objects sampled by --infer")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

// inferTable samples t.Location and fills in whatever the user did not set
// explicitly on the command line.
func inferTable(ctx context.Context, cmd *cobra.Command, job config.Job, t *catalog.Table, sampleObjects int) error {
	store, err := resolveStoreFn(ctx, t.Location, job.ObjStore)
	if err != nil {
		return err
	}
	res, err := probe.Infer(ctx, store, t.Format, probe.Options{
		MaxObjects: sampleObjects,
		Parser:     datasource.ParserOptions(*t, job.Source.Options),
	})
	if err != nil {
		return fmt.Errorf("infer %s: %w", t.Location, err)
	}
	if !cmd.Flags().Changed("columns") {
		t.Columns = res.Columns
	}
	if !cmd.Flags().Changed("partition-keys") {
		t.PartitionKeys = res.PartitionKeys
	}
	fmt.Fprintf(cmd.OutOrStdout(), "inferred %d columns from %d records in %d objects\n",
		len(res.Columns), res.Records, res.Objects)
	return nil
}

func newCatalogPartitionsCmd(cfgPath *string) *cobra.Command {
	var database, table string
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the registered partitions of a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, *cfgPath, func(ctx context.Context, job config.Job, cat catalog.Catalog) error {
				if database == "" {
					database = job.Sink.Database
				}
				if table == "" {
					table = job.Sink.Table
				}
				t, err := cat.GetTable(ctx, database, table)
				if err != nil {
					return err
				}
				parts, err := cat.ListPartitions(ctx, database, table)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, p := range parts {
					fmt.Fprintf(out, "%s\trecords=%d\tfiles=%d\tbytes=%d\tchecksum=%s\n",
						p.Key(t.PartitionKeys), p.Records, p.Files, p.Bytes, p.Checksum)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "catalog database (default: sink database)")
	cmd.Flags().StringVar(&table, "table", "", "table name (default: sink table)")
	return cmd
}

// setupMetrics installs the configured metrics backend and returns the flush
// to run at exit.
func setupMetrics(job config.Job, log *zap.Logger) (func(), error) {
	var (
		b   metrics.Backend
		err error
	)
	switch job.Metrics.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(job.Job, job.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       job.Metrics.DatadogAddr,
			Namespace:  job.Metrics.Namespace,
			GlobalTags: job.Metrics.Tags,
		})
	default:
		log.Debug("metrics: disabled", zap.String("backend", job.Metrics.Backend))
		return func() {}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	metrics.SetBackend(b)
	log.Info("metrics: enabled", zap.String("backend", job.Metrics.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush", zap.Error(err))
		}
	}, nil
}
