// Package config defines the canonical, JSON-serializable configuration model
// for the events ETL job. A job file is decoded into Job, overlaid with
// environment variables (see env.go), defaulted, and then linted by
// ValidateJob before anything touches the catalog or object storage.
//
// Example (trimmed):
//
//	{
//	  "job":     "ecommerce-raw-to-processed",
//	  "source":  { "database": "ecommerce_raw_db", "table": "data" },
//	  "transform": { "on_error": "reject_row" },
//	  "sink": {
//	    "path": "s3://yourname-ecomm-processed-data-lake/processed_events/",
//	    "format": "parquet", "compression": "snappy",
//	    "partition_keys": ["year", "month", "day"],
//	    "database": "ecommerce_processed_db", "table": "events",
//	    "update_behavior": "UPDATE_IN_DATABASE"
//	  },
//	  "catalog": { "kind": "postgres", "dsn": "postgres://..." }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Malformed-row policies for transform.on_error.
const (
	OnErrorRejectRow = "reject_row"
	OnErrorNullField = "null_field"
	OnErrorFailJob   = "fail_job"
)

// Catalog update behaviors for sink.update_behavior.
const (
	UpdateInDatabase = "UPDATE_IN_DATABASE"
	UpdateLog        = "LOG"
)

// Job describes one run of the raw-to-processed events job.
type Job struct {
	// Job identifies the run in logs, metrics and the run ledger.
	Job string `json:"job"`

	Source    Source        `json:"source"`
	Transform Transform     `json:"transform"`
	Sink      Sink          `json:"sink"`
	Catalog   Catalog       `json:"catalog"`
	ObjStore  ObjStore      `json:"objstore"`
	Runtime   RuntimeConfig `json:"runtime"`
	Metrics   Metrics       `json:"metrics"`
	Notify    Notify        `json:"notify"`
	Log       Log           `json:"log"`
}

// Source names the raw catalog table to read.
type Source struct {
	Database string `json:"database"`
	Table    string `json:"table"`

	// PartitionFallback controls rows whose object path carries no partition
	// values: "" rejects them, "timestamp" derives year/month/day from the
	// coerced timestamp.
	PartitionFallback string `json:"partition_fallback"`

	// Options is passed to the format parser (e.g. CSV "comma").
	Options Options `json:"options"`
}

// Transform configures the cast/derive/project stage.
type Transform struct {
	// OnError is one of reject_row, null_field, fail_job.
	OnError string `json:"on_error"`

	// TimestampLayouts are tried before the built-in layouts.
	TimestampLayouts []string `json:"timestamp_layouts"`

	// Timezone interprets zone-less timestamps and defines the calendar used
	// for event_date_only. Defaults to UTC.
	Timezone string `json:"timezone"`

	// NormalizeStrings applies Unicode NFC + trim to string fields.
	NormalizeStrings *bool `json:"normalize_strings"`

	// Dedupe drops repeated event_id values within a run (keep-first).
	Dedupe bool `json:"dedupe"`
}

// Sink describes the partitioned columnar output and its catalog table.
type Sink struct {
	Path           string   `json:"path"`
	Format         string   `json:"format"`
	Compression    string   `json:"compression"`
	PartitionKeys  []string `json:"partition_keys"`
	Database       string   `json:"database"`
	Table          string   `json:"table"`
	UpdateBehavior string   `json:"update_behavior"`

	// RowsPerFile rolls a new part file per partition after this many rows.
	RowsPerFile int `json:"rows_per_file"`

	// ErrorsPath, when set, receives NDJSON records for rejected or nulled rows.
	ErrorsPath string `json:"errors_path"`
}

// Catalog selects the metadata catalog backend.
type Catalog struct {
	// Kind is one of postgres, sqlite, mysql, mssql.
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`

	// AutoMigrate creates the catalog tables when they are missing.
	AutoMigrate bool `json:"auto_migrate"`
}

// ObjStore carries object-storage client settings.
type ObjStore struct {
	S3 S3 `json:"s3"`
}

// S3 configures the S3 client. Endpoint is for S3-compatible stores
// (MinIO, LocalStack); when set, path-style addressing is used.
type S3 struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// RuntimeConfig controls concurrency and buffering.
type RuntimeConfig struct {
	TransformWorkers int `json:"transform_workers"`
	ChannelBuffer    int `json:"channel_buffer"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is one of none, pushgateway, datadog.
	Backend        string   `json:"backend"`
	PushgatewayURL string   `json:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr"`
	Namespace      string   `json:"namespace"`
	Tags           []string `json:"tags"`
}

// Notify configures the optional run-completion message.
type Notify struct {
	SQSQueueURL string `json:"sqs_queue_url"`
	Region      string `json:"region"`
	Endpoint    string `json:"endpoint"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `json:"level"`
	Environment string `json:"environment"`
}

// Load reads a job file from path, applies environment overrides and fills
// defaults. It does not validate; call ValidateJob for that.
func Load(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	j, err := Decode(f)
	if err != nil {
		return Job{}, err
	}
	if err := ApplyEnv(&j); err != nil {
		return Job{}, err
	}
	j.ApplyDefaults()
	return j, nil
}

// Decode decodes a job file. Unknown keys are rejected so typos surface early.
func Decode(r io.Reader) (Job, error) {
	var j Job
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return Job{}, fmt.Errorf("decode config: %w", err)
	}
	return j, nil
}

// ApplyDefaults fills unset fields with the values the job has always run
// with.
func (j *Job) ApplyDefaults() {
	if j.Source.Database == "" {
		j.Source.Database = "ecommerce_raw_db"
	}
	if j.Source.Table == "" {
		j.Source.Table = "data"
	}
	if j.Source.Options == nil {
		j.Source.Options = Options{}
	}
	if j.Transform.OnError == "" {
		j.Transform.OnError = OnErrorRejectRow
	}
	if j.Transform.Timezone == "" {
		j.Transform.Timezone = "UTC"
	}
	if j.Transform.NormalizeStrings == nil {
		t := true
		j.Transform.NormalizeStrings = &t
	}
	if j.Sink.Format == "" {
		j.Sink.Format = "parquet"
	}
	if j.Sink.Compression == "" {
		j.Sink.Compression = "snappy"
	}
	if len(j.Sink.PartitionKeys) == 0 {
		j.Sink.PartitionKeys = []string{"year", "month", "day"}
	}
	if j.Sink.Database == "" {
		j.Sink.Database = "ecommerce_processed_db"
	}
	if j.Sink.Table == "" {
		j.Sink.Table = "events"
	}
	if j.Sink.UpdateBehavior == "" {
		j.Sink.UpdateBehavior = UpdateInDatabase
	}
	if j.Sink.RowsPerFile <= 0 {
		j.Sink.RowsPerFile = 1_000_000
	}
	if j.Metrics.Backend == "" {
		j.Metrics.Backend = "none"
	}
	if j.Log.Level == "" {
		j.Log.Level = "info"
	}
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal type coercion and returns provided defaults when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// so float64 is accepted and truncated.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for single-character settings such as a CSV
// delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, vv := range m {
				res[k] = vv
			}
		}
	}
	return res
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
