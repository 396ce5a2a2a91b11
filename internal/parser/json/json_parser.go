// Package json streams JSON objects into pooled transformer rows.
//
// Two layouts are understood:
//
//   - "lines" (default): newline-delimited JSON, one object per line, the
//     layout crawled event tables use. A malformed line is reported and
//     skipped; the rest of the object is still read.
//   - "document": a single JSON document that is a root array of objects,
//     an envelope object holding such an array ({"records": [...]}), or a
//     single object, optionally followed by more top-level objects. Any
//     decode error ends the object.
package json

import (
	"ecommetl/internal/config"
)

// Layout names for the "layout" parser option.
const (
	LayoutLines    = "lines"
	LayoutDocument = "document"
)

// Options configures StreamJSONRows.
type Options struct {
	// Layout is LayoutLines or LayoutDocument.
	Layout string
	// HeaderMap maps original JSON keys to column names. Unmapped keys go
	// through builtin.CanonicalName.
	HeaderMap map[string]string
	// MaxLineBytes bounds a single line in LayoutLines; 0 means unbounded.
	MaxLineBytes int
}

// FromConfigOptions constructs JSON Options from a generic config.Options
// map (the same one used by the csv parser).
func FromConfigOptions(o config.Options) Options {
	layout := o.String("layout", LayoutLines)
	if layout != LayoutDocument {
		layout = LayoutLines
	}
	return Options{
		Layout:       layout,
		HeaderMap:    o.StringMap("header_map"),
		MaxLineBytes: o.Int("max_line_bytes", 0),
	}
}
