package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Job decoding tests
// -----------------------------------------------------------------------------
//
// These tests validate that job files (configs/jobs/*.json) decode into the
// intended Go struct graph and that defaults match what the job has always
// run with.

const fullJob = `{
  "job": "ecommerce-raw-to-processed",
  "source": { "database": "ecommerce_raw_db", "table": "data", "partition_fallback": "timestamp",
              "options": { "comma": ";", "has_header": true } },
  "transform": { "on_error": "null_field", "timestamp_layouts": ["02.01.2006 15:04"], "timezone": "Europe/Prague", "dedupe": true },
  "sink": {
    "path": "s3://bucket/processed_events/",
    "format": "parquet", "compression": "snappy",
    "partition_keys": ["year", "month", "day"],
    "database": "ecommerce_processed_db", "table": "events",
    "update_behavior": "LOG", "rows_per_file": 500, "errors_path": "s3://bucket/errors/"
  },
  "catalog": { "kind": "postgres", "dsn": "postgres://u:p@localhost/catalog", "auto_migrate": true },
  "objstore": { "s3": { "region": "eu-central-1", "endpoint": "http://localhost:4566" } },
  "runtime": { "transform_workers": 4, "channel_buffer": 256 },
  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://pgw:9091" },
  "notify": { "sqs_queue_url": "http://localhost:4566/000000000000/etl-runs" },
  "log": { "level": "debug", "environment": "development" }
}`

func TestDecode_FullJob(t *testing.T) {
	t.Parallel()

	j, err := Decode(strings.NewReader(fullJob))
	require.NoError(t, err)

	assert.Equal(t, "ecommerce-raw-to-processed", j.Job)
	assert.Equal(t, "timestamp", j.Source.PartitionFallback)
	assert.Equal(t, ';', j.Source.Options.Rune("comma", ','))
	assert.True(t, j.Source.Options.Bool("has_header", false))
	assert.Equal(t, OnErrorNullField, j.Transform.OnError)
	assert.Equal(t, []string{"02.01.2006 15:04"}, j.Transform.TimestampLayouts)
	assert.True(t, j.Transform.Dedupe)
	assert.Nil(t, j.Transform.NormalizeStrings)
	assert.Equal(t, UpdateLog, j.Sink.UpdateBehavior)
	assert.Equal(t, 500, j.Sink.RowsPerFile)
	assert.Equal(t, "postgres", j.Catalog.Kind)
	assert.True(t, j.Catalog.AutoMigrate)
	assert.Equal(t, "http://localhost:4566", j.ObjStore.S3.Endpoint)
	assert.Equal(t, 4, j.Runtime.TransformWorkers)
	assert.Equal(t, "http://pgw:9091", j.Metrics.PushgatewayURL)
	assert.Equal(t, "debug", j.Log.Level)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader(`{"job":"x","sinc":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sinc")
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var j Job
	j.ApplyDefaults()

	assert.Equal(t, "ecommerce_raw_db", j.Source.Database)
	assert.Equal(t, "data", j.Source.Table)
	assert.NotNil(t, j.Source.Options)
	assert.Equal(t, OnErrorRejectRow, j.Transform.OnError)
	assert.Equal(t, "UTC", j.Transform.Timezone)
	require.NotNil(t, j.Transform.NormalizeStrings)
	assert.True(t, *j.Transform.NormalizeStrings)
	assert.Equal(t, "parquet", j.Sink.Format)
	assert.Equal(t, "snappy", j.Sink.Compression)
	assert.Equal(t, []string{"year", "month", "day"}, j.Sink.PartitionKeys)
	assert.Equal(t, "ecommerce_processed_db", j.Sink.Database)
	assert.Equal(t, "events", j.Sink.Table)
	assert.Equal(t, UpdateInDatabase, j.Sink.UpdateBehavior)
	assert.Equal(t, 1_000_000, j.Sink.RowsPerFile)
	assert.Equal(t, "none", j.Metrics.Backend)
	assert.Equal(t, "info", j.Log.Level)
}

func TestApplyDefaults_KeepsExplicitFalse(t *testing.T) {
	t.Parallel()

	j, err := Decode(strings.NewReader(`{"transform":{"normalize_strings":false}}`))
	require.NoError(t, err)
	j.ApplyDefaults()
	require.NotNil(t, j.Transform.NormalizeStrings)
	assert.False(t, *j.Transform.NormalizeStrings)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(p, []byte(fullJob), 0o644))

	t.Setenv("ETL_CATALOG_KIND", "sqlite")
	t.Setenv("ETL_CATALOG_DSN", "file:catalog.db")
	t.Setenv("ETL_TRANSFORM_WORKERS", "8")
	t.Setenv("ETL_ON_ERROR", "fail_job")

	j, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", j.Catalog.Kind)
	assert.Equal(t, "file:catalog.db", j.Catalog.DSN)
	assert.Equal(t, 8, j.Runtime.TransformWorkers)
	assert.Equal(t, OnErrorFailJob, j.Transform.OnError)
	// Untouched by env.
	assert.Equal(t, 256, j.Runtime.ChannelBuffer)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open config")
}

// -----------------------------------------------------------------------------
// Options helper tests
// -----------------------------------------------------------------------------

func TestOptions_TypedGetters(t *testing.T) {
	t.Parallel()

	var o Options
	require.NoError(t, json.Unmarshal([]byte(`{
	  "s": "x", "b": true, "n": 12, "r": "|", "empty": "",
	  "m": { "a": "1", "b": 2 }
	}`), &o))

	assert.Equal(t, "x", o.String("s", "d"))
	assert.Equal(t, "d", o.String("n", "d"))
	assert.True(t, o.Bool("b", false))
	assert.False(t, o.Bool("s", false))
	assert.Equal(t, 12, o.Int("n", 0))
	assert.Equal(t, 7, o.Int("s", 7))
	assert.Equal(t, '|', o.Rune("r", ','))
	assert.Equal(t, ',', o.Rune("empty", ','))
	assert.Equal(t, map[string]string{"a": "1"}, o.StringMap("m"))
	assert.Empty(t, o.StringMap("missing"))
}

func TestOptions_NullDecodesEmpty(t *testing.T) {
	t.Parallel()

	var s Source
	require.NoError(t, json.Unmarshal([]byte(`{"options": null}`), &s))
	assert.NotNil(t, s.Options)
	assert.Empty(t, s.Options)
}

func TestLoad_ShippedJobIsValid(t *testing.T) {
	j, err := Load(filepath.Join("..", "..", "configs", "jobs", "ecommerce_raw_to_processed.json"))
	require.NoError(t, err)

	assert.Equal(t, "ecommerce-raw-to-processed", j.Job)
	assert.Equal(t, "s3://yourname-ecomm-processed-data-lake/processed_events/", j.Sink.Path)
	assert.Empty(t, ValidateJob(j))
}
