// Package parser dispatches raw objects to the format-specific streaming
// parsers by table format.
package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"ecommetl/internal/config"
	csvparser "ecommetl/internal/parser/csv"
	jsonparser "ecommetl/internal/parser/json"
	"ecommetl/internal/transformer"
)

// Formats lists the raw table formats Stream understands.
var Formats = []string{"json", "csv"}

// Supported reports whether format can be streamed.
func Supported(format string) bool {
	switch strings.ToLower(format) {
	case "json", "csv":
		return true
	}
	return false
}

// Stream parses src in the given format and sends one pooled row per record
// to out, stamped with origin. It closes src. Per-record problems go to
// onErr; the returned error means the object could not be read further.
func Stream(
	ctx context.Context,
	format string,
	src io.ReadCloser,
	origin transformer.Origin,
	columns []string,
	opts config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	switch strings.ToLower(format) {
	case "json":
		return jsonparser.StreamJSONRows(ctx, src, origin, columns, jsonparser.FromConfigOptions(opts), out, onErr)
	case "csv":
		return csvparser.StreamCSVRows(ctx, src, origin, columns, opts, out, onErr)
	}
	src.Close()
	return fmt.Errorf("parser: unsupported format %q", format)
}
