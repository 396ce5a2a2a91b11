package transformer

import (
	"sync"

	"ecommetl/internal/schema"
)

// Row is the unit that flows reader → transform → writer. Rows are pooled;
// the stage that drops or finishes with a row must call Free.
type Row struct {
	// Line is the 1-based record number within Source.
	Line int
	// Source is the object key the row was read from.
	Source string
	// Partition holds partition values parsed from the object path, keyed by
	// partition name. It is shared by all rows of one object and must be
	// treated as read-only.
	Partition map[string]string
	// V holds raw values aligned to the dataset columns. Values are string,
	// float64, json.Number, bool or nil.
	V []any

	// Out is the coerced, projected record. Valid after a successful Apply.
	Out schema.Event
	// PartVals are the output partition values aligned to the sink
	// partition keys. Valid after a successful Apply.
	PartVals []string
}

// Origin identifies the object rows were read from. Parsers stamp it onto
// every row they emit.
type Origin struct {
	Source    string
	Partition map[string]string
}

// Stamp sets r's origin fields and line number.
func (o Origin) Stamp(r *Row, line int) {
	r.Source = o.Source
	r.Partition = o.Partition
	r.Line = line
}

var rowPool = sync.Pool{New: func() any { return &Row{} }}

// GetRow returns a pooled Row with len(V) == n and every value nil.
func GetRow(n int) *Row {
	r := rowPool.Get().(*Row)
	if cap(r.V) < n {
		r.V = make([]any, n)
	} else {
		r.V = r.V[:n]
	}
	return r
}

// Free clears r and returns it to the pool.
func (r *Row) Free() {
	clear(r.V)
	r.V = r.V[:0]
	r.Line = 0
	r.Source = ""
	r.Partition = nil
	r.Out = schema.Event{}
	r.PartVals = nil
	rowPool.Put(r)
}
