// Package transformer implements the cast/derive/project stage of the job.
//
// A Transformer is compiled once from Options and then applied to pooled
// *Row values by any number of worker goroutines. Apply reads only the row
// it is given and the immutable compiled plan, so it is safe for concurrent
// use without locks.
package transformer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ecommetl/internal/schema"
	"ecommetl/internal/transformer/builtin"
)

// Policy selects what happens to a row whose fields fail coercion.
type Policy uint8

const (
	// RejectRow drops the whole row and reports it.
	RejectRow Policy = iota
	// NullField nulls each failing field and keeps the row.
	NullField
	// FailJob aborts the run on the first failure.
	FailJob
)

func (p Policy) String() string {
	switch p {
	case RejectRow:
		return "reject_row"
	case NullField:
		return "null_field"
	case FailJob:
		return "fail_job"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy maps a transform.on_error value to a Policy. Empty means
// RejectRow.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject_row":
		return RejectRow, nil
	case "null_field":
		return NullField, nil
	case "fail_job":
		return FailJob, nil
	}
	return 0, fmt.Errorf("unknown on_error policy %q", s)
}

// Options configures a Transformer.
type Options struct {
	// Columns names the values in Row.V, in order. Names are matched after
	// builtin.CanonicalName, so "Event Type" finds event_type.
	Columns []string

	Policy Policy

	// TimestampLayouts are tried before the built-in layouts.
	TimestampLayouts []string

	// Location interprets zone-less timestamps and defines the calendar for
	// event_date_only. Nil means UTC.
	Location *time.Location

	// NormalizeStrings applies builtin.Normalize to string fields.
	NormalizeStrings bool

	// PartitionKeys are the output partition keys, in path order.
	PartitionKeys []string

	// PartitionFallback derives year/month/day from the coerced timestamp
	// when the source path carries no value for a key.
	PartitionFallback bool
}

// Outcome reports what Apply did to a row that was kept.
type Outcome struct {
	// Nulled lists fields replaced by null under the NullField policy.
	Nulled []FieldError
}

// Transformer turns raw rows into schema.Event records.
type Transformer struct {
	plan     compiledPlan
	policy   Policy
	loc      *time.Location
	keys     []string
	fallback bool
	idIx     int
	norm     bool
}

var fallbackKeys = map[string]struct{}{"year": {}, "month": {}, "day": {}}

// New compiles opts into a Transformer.
func New(opts Options) (*Transformer, error) {
	if len(opts.Columns) == 0 {
		return nil, errors.New("transformer: no input columns")
	}
	if opts.Policy > FailJob {
		return nil, fmt.Errorf("transformer: invalid policy %d", opts.Policy)
	}
	for _, k := range opts.PartitionKeys {
		if strings.TrimSpace(k) == "" {
			return nil, errors.New("transformer: empty partition key")
		}
		if opts.PartitionFallback {
			if _, ok := fallbackKeys[k]; !ok {
				return nil, fmt.Errorf("transformer: partition key %q cannot be derived from timestamp", k)
			}
		}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	t := &Transformer{
		policy:   opts.Policy,
		loc:      loc,
		keys:     append([]string(nil), opts.PartitionKeys...),
		fallback: opts.PartitionFallback,
		norm:     opts.NormalizeStrings,
	}
	t.plan = compilePlan(opts.Columns, planConfig{
		layouts:   append(append([]string(nil), opts.TimestampLayouts...), defaultLayouts...),
		loc:       loc,
		normalize: opts.NormalizeStrings,
	})
	t.idIx = -1
	if i, ok := t.plan.index[schema.ColEventID]; ok {
		t.idIx = i
	}
	return t, nil
}

// Policy returns the configured malformed-row policy.
func (t *Transformer) Policy() Policy { return t.policy }

// Apply coerces r.V into r.Out and resolves r.PartVals.
//
// On success the row is kept; Outcome lists any fields nulled by policy.
// On failure Apply returns a *CoercionError: non-fatal (matching
// ErrRowRejected) under RejectRow and NullField, fatal under FailJob.
// Timestamp failures are reported under every policy.
func (t *Transformer) Apply(r *Row) (Outcome, error) {
	r.Out = schema.Event{}
	r.PartVals = nil

	var failed []FieldError
	for i := range t.plan.cols {
		c := &t.plan.cols[i]
		if c.src < 0 || c.src >= len(r.V) {
			continue
		}
		v := r.V[c.src]
		if v == nil {
			continue
		}
		if err := c.set(&r.Out, v); err != nil {
			fe := FieldError{Field: c.name, Value: display(v), Err: err}
			if t.policy == FailJob {
				return Outcome{}, &CoercionError{Line: r.Line, Source: r.Source, Fields: []FieldError{fe}, Fatal: true}
			}
			failed = append(failed, fe)
		}
	}

	if r.Out.Timestamp != nil {
		d := schema.DateOf(*r.Out.Timestamp, t.loc)
		r.Out.EventDateOnly = &d
	}

	if len(failed) > 0 && t.policy == RejectRow {
		return Outcome{}, &CoercionError{Line: r.Line, Source: r.Source, Fields: failed}
	}

	pv, err := t.partitionValues(r)
	if err != nil {
		fe := FieldError{Field: "partition", Value: strings.Join(t.keys, "/"), Err: err}
		return Outcome{}, &CoercionError{
			Line:   r.Line,
			Source: r.Source,
			Fields: append(failed, fe),
			Fatal:  t.policy == FailJob,
		}
	}
	r.PartVals = pv
	return Outcome{Nulled: failed}, nil
}

// EventID returns the normalized raw event_id of r, or "" when absent. It is
// the key used for de-duplication and does not require Apply.
func (t *Transformer) EventID(r *Row) string {
	if t.idIx < 0 || t.idIx >= len(r.V) {
		return ""
	}
	s, ok := asString(r.V[t.idIx])
	if !ok {
		return ""
	}
	if t.norm {
		return builtin.Normalize(s)
	}
	return strings.TrimSpace(s)
}

// partitionValues resolves the output partition values for r, falling back
// to the event date when enabled.
func (t *Transformer) partitionValues(r *Row) ([]string, error) {
	if len(t.keys) == 0 {
		return nil, nil
	}
	out := make([]string, len(t.keys))
	for i, k := range t.keys {
		if v := r.Partition[k]; v != "" {
			out[i] = v
			continue
		}
		if !t.fallback || r.Out.EventDateOnly == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingPartition, k)
		}
		d := *r.Out.EventDateOnly
		switch k {
		case "year":
			out[i] = fmt.Sprintf("%04d", d.Year())
		case "month":
			out[i] = fmt.Sprintf("%02d", int(d.Month()))
		case "day":
			out[i] = fmt.Sprintf("%02d", d.Day())
		}
	}
	return out, nil
}
