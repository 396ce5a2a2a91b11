// This file adds a lightweight linter/validator for Job values. It performs
// static checks over a decoded Job and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.

package config

import (
	"fmt"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Job.
//
// Path is a dotted path into the config (e.g. "sink.partition_keys[1]").
// Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation of a defaulted Job.
//
// It does not mutate the job. Callers decide whether warnings are fatal.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateTransform(j.Transform)...)
	issues = append(issues, validateSink(j.Sink)...)
	issues = append(issues, validateCatalog(j.Catalog)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateMetrics(j.Metrics)...)

	if j.Source.Database == j.Sink.Database && j.Source.Table == j.Sink.Table {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.table",
			Message:  "sink table must differ from the source table",
		})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Database) == "" {
		issues = append(issues, errIssue("source.database", "source.database must not be empty"))
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, errIssue("source.table", "source.table must not be empty"))
	}
	switch s.PartitionFallback {
	case "", "timestamp":
	default:
		issues = append(issues, errIssue("source.partition_fallback",
			fmt.Sprintf("unknown partition_fallback %q; expected \"\" or \"timestamp\"", s.PartitionFallback)))
	}
	return issues
}

func validateTransform(t Transform) []Issue {
	var issues []Issue
	switch t.OnError {
	case OnErrorRejectRow, OnErrorNullField, OnErrorFailJob:
	default:
		issues = append(issues, errIssue("transform.on_error",
			fmt.Sprintf("unknown on_error %q; expected reject_row, null_field or fail_job", t.OnError)))
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		issues = append(issues, errIssue("transform.timezone", fmt.Sprintf("cannot load timezone %q: %v", t.Timezone, err)))
	}
	for i, l := range t.TimestampLayouts {
		if strings.TrimSpace(l) == "" {
			issues = append(issues, errIssue(fmt.Sprintf("transform.timestamp_layouts[%d]", i), "layout must not be empty"))
		}
	}
	return issues
}

var knownPartitionKeys = map[string]struct{}{"year": {}, "month": {}, "day": {}}

func validateSink(s Sink) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Path) == "" {
		issues = append(issues, errIssue("sink.path", "sink.path must not be empty"))
	} else if !strings.Contains(s.Path, "://") && !strings.HasPrefix(s.Path, "/") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.path",
			Message:  "sink.path has no scheme; it will be treated as a relative local path",
		})
	}
	if s.Format != "parquet" {
		issues = append(issues, errIssue("sink.format", fmt.Sprintf("unsupported format %q; only parquet is written", s.Format)))
	}
	switch s.Compression {
	case "snappy", "gzip", "zstd", "lz4", "none":
	default:
		issues = append(issues, errIssue("sink.compression", fmt.Sprintf("unsupported compression %q", s.Compression)))
	}
	if s.Compression != "snappy" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.compression",
			Message:  fmt.Sprintf("compression %q differs from the snappy default downstream readers expect", s.Compression),
		})
	}

	seen := map[string]bool{}
	for i, k := range s.PartitionKeys {
		p := fmt.Sprintf("sink.partition_keys[%d]", i)
		if _, ok := knownPartitionKeys[k]; !ok {
			issues = append(issues, errIssue(p, fmt.Sprintf("unknown partition key %q; expected year, month or day", k)))
		}
		if seen[k] {
			issues = append(issues, errIssue(p, fmt.Sprintf("duplicate partition key %q", k)))
		}
		seen[k] = true
	}
	if strings.TrimSpace(s.Database) == "" {
		issues = append(issues, errIssue("sink.database", "sink.database must not be empty"))
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, errIssue("sink.table", "sink.table must not be empty"))
	}
	switch s.UpdateBehavior {
	case UpdateInDatabase, UpdateLog:
	default:
		issues = append(issues, errIssue("sink.update_behavior",
			fmt.Sprintf("unknown update_behavior %q; expected UPDATE_IN_DATABASE or LOG", s.UpdateBehavior)))
	}
	if s.RowsPerFile < 0 {
		issues = append(issues, errIssue("sink.rows_per_file", "rows_per_file must be positive"))
	}
	return issues
}

func validateCatalog(c Catalog) []Issue {
	var issues []Issue
	switch c.Kind {
	case "postgres", "sqlite", "mysql", "mssql":
	case "":
		issues = append(issues, errIssue("catalog.kind", "catalog.kind must not be empty"))
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "catalog.kind",
			Message:  fmt.Sprintf("unknown catalog kind %q; ensure a matching backend is registered", c.Kind),
		})
	}
	if strings.TrimSpace(c.DSN) == "" {
		issues = append(issues, errIssue("catalog.dsn", "catalog.dsn must not be empty"))
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.TransformWorkers < 0 {
		issues = append(issues, errIssue("runtime.transform_workers", "transform_workers must not be negative"))
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, errIssue("runtime.channel_buffer", "channel_buffer must not be negative"))
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, errIssue("metrics.pushgateway_url", "pushgateway backend requires pushgateway_url"))
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "datadog_addr empty; the client will use DD_AGENT_HOST or the default agent address",
			})
		}
	default:
		issues = append(issues, errIssue("metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)))
	}
	return issues
}

func errIssue(path, msg string) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: msg}
}
