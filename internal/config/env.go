package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the settings operators commonly inject per environment
// rather than commit to a job file. Empty values leave the file untouched.
type envOverrides struct {
	CatalogKind      string `envconfig:"CATALOG_KIND"`
	CatalogDSN       string `envconfig:"CATALOG_DSN"`
	SinkPath         string `envconfig:"SINK_PATH"`
	ErrorsPath       string `envconfig:"ERRORS_PATH"`
	OnError          string `envconfig:"ON_ERROR"`
	TransformWorkers int    `envconfig:"TRANSFORM_WORKERS"`
	ChannelBuffer    int    `envconfig:"CH_BUFFER"`
	S3Region         string `envconfig:"S3_REGION"`
	S3Endpoint       string `envconfig:"S3_ENDPOINT"`
	MetricsBackend   string `envconfig:"METRICS_BACKEND"`
	PushgatewayURL   string `envconfig:"PUSHGATEWAY_URL"`
	DatadogAddr      string `envconfig:"DATADOG_ADDR"`
	SQSQueueURL      string `envconfig:"SQS_QUEUE_URL"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	Environment      string `envconfig:"ENVIRONMENT"`
}

// ApplyEnv overlays ETL_-prefixed environment variables onto j
// (e.g. ETL_CATALOG_DSN, ETL_TRANSFORM_WORKERS).
func ApplyEnv(j *Job) error {
	var e envOverrides
	if err := envconfig.Process("etl", &e); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	setStr(&j.Catalog.Kind, e.CatalogKind)
	setStr(&j.Catalog.DSN, e.CatalogDSN)
	setStr(&j.Sink.Path, e.SinkPath)
	setStr(&j.Sink.ErrorsPath, e.ErrorsPath)
	setStr(&j.Transform.OnError, e.OnError)
	setStr(&j.ObjStore.S3.Region, e.S3Region)
	setStr(&j.ObjStore.S3.Endpoint, e.S3Endpoint)
	setStr(&j.Metrics.Backend, e.MetricsBackend)
	setStr(&j.Metrics.PushgatewayURL, e.PushgatewayURL)
	setStr(&j.Metrics.DatadogAddr, e.DatadogAddr)
	setStr(&j.Notify.SQSQueueURL, e.SQSQueueURL)
	setStr(&j.Log.Level, e.LogLevel)
	setStr(&j.Log.Environment, e.Environment)

	if e.TransformWorkers > 0 {
		j.Runtime.TransformWorkers = e.TransformWorkers
	}
	if e.ChannelBuffer > 0 {
		j.Runtime.ChannelBuffer = e.ChannelBuffer
	}
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
