package csv

import (
	"strings"

	"ecommetl/internal/transformer/builtin"
)

// binding maps each target column to the index of the source cell that
// feeds it, or -1 when the object has no such column.
type binding []int

// positional binds target column i to cell i.
func positional(n int) binding {
	b := make(binding, n)
	for i := range b {
		b[i] = i
	}
	return b
}

// bindHeader matches a header record against columns by canonical name.
// renames maps raw header text to a column name before canonicalization.
// The first of several identically named header cells wins.
func bindHeader(hdr []string, columns []string, renames map[string]string) binding {
	if len(hdr) > 0 {
		hdr[0] = strings.TrimPrefix(hdr[0], "\uFEFF")
	}
	pos := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if to, ok := renames[h]; ok {
			h = to
		}
		h = builtin.CanonicalName(h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	b := make(binding, len(columns))
	for i, c := range columns {
		if si, ok := pos[builtin.CanonicalName(c)]; ok {
			b[i] = si
		} else {
			b[i] = -1
		}
	}
	return b
}

// fill copies rec into v per the binding. Cells that are missing or empty
// after optional trimming become nil.
func (b binding) fill(v []any, rec []string, trim bool) {
	for i, si := range b {
		if si < 0 || si >= len(rec) {
			v[i] = nil
			continue
		}
		s := rec[si]
		if trim && builtin.HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			v[i] = nil
		} else {
			v[i] = s
		}
	}
}
