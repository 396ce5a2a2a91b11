package transformer

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"ecommetl/internal/schema"
	"ecommetl/internal/transformer/builtin"
)

// defaultLayouts are tried in order after any configured layouts. Layouts
// without a zone are interpreted in the configured location.
var defaultLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// maxEpochSeconds bounds numeric timestamps to years before 10000.
const maxEpochSeconds = 253402300800

// --- plan compilation ---------------------------------------------------------

type planConfig struct {
	layouts   []string
	loc       *time.Location
	normalize bool
}

// colPlan binds one output field to its source position and setter.
type colPlan struct {
	name string
	src  int // index into Row.V, -1 when the dataset lacks the column
	set  func(e *schema.Event, v any) error
}

// compiledPlan holds the per-field coercion plan with inline setters, so the
// hot loop does no map lookups.
type compiledPlan struct {
	cols  []colPlan
	index map[string]int
}

func compilePlan(columns []string, cfg planConfig) compiledPlan {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		name := builtin.CanonicalName(c)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	pos := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}
	str := func(dst func(e *schema.Event) **string) func(e *schema.Event, v any) error {
		return func(e *schema.Event, v any) error {
			s, ok := asString(v)
			if !ok {
				return ErrUnsupportedType
			}
			if cfg.normalize {
				s = builtin.Normalize(s)
			} else if builtin.HasEdgeSpace(s) {
				s = strings.TrimSpace(s)
			}
			if s != "" {
				*dst(e) = &s
			}
			return nil
		}
	}

	cols := make([]colPlan, 0, len(schema.Fields)-1)
	for _, f := range schema.Fields {
		c := colPlan{name: f.Name, src: pos(f.Name)}
		switch f.Name {
		case schema.ColEventDateOnly:
			// Derived from timestamp, never read.
			continue
		case schema.ColTimestamp:
			c.set = func(e *schema.Event, v any) error {
				ts, ok, err := toTimestamp(v, cfg.layouts, cfg.loc)
				if err != nil {
					return err
				}
				if ok {
					e.Timestamp = &ts
				}
				return nil
			}
		case schema.ColPrice:
			c.set = func(e *schema.Event, v any) error {
				p, ok, err := toPrice(v)
				if err != nil {
					return err
				}
				if ok {
					e.Price = &p
				}
				return nil
			}
		case schema.ColQuantity:
			c.set = func(e *schema.Event, v any) error {
				q, ok, err := toQuantity(v)
				if err != nil {
					return err
				}
				if ok {
					e.Quantity = &q
				}
				return nil
			}
		default:
			c.set = str(stringField(f.Name))
		}
		cols = append(cols, c)
	}
	return compiledPlan{cols: cols, index: index}
}

// stringField returns an accessor for the string-typed field name.
func stringField(name string) func(e *schema.Event) **string {
	switch name {
	case schema.ColEventID:
		return func(e *schema.Event) **string { return &e.EventID }
	case schema.ColUserID:
		return func(e *schema.Event) **string { return &e.UserID }
	case schema.ColSessionID:
		return func(e *schema.Event) **string { return &e.SessionID }
	case schema.ColEventType:
		return func(e *schema.Event) **string { return &e.EventType }
	case schema.ColPageURL:
		return func(e *schema.Event) **string { return &e.PageURL }
	case schema.ColProductID:
		return func(e *schema.Event) **string { return &e.ProductID }
	case schema.ColCategory:
		return func(e *schema.Event) **string { return &e.Category }
	case schema.ColPaymentMethod:
		return func(e *schema.Event) **string { return &e.PaymentMethod }
	case schema.ColBrowser:
		return func(e *schema.Event) **string { return &e.Browser }
	case schema.ColOS:
		return func(e *schema.Event) **string { return &e.OS }
	}
	panic("transformer: no string field " + name)
}

// --- coercers -----------------------------------------------------------------
//
// Each coercer returns (value, present, err). present is false for empty
// input, which becomes null without counting as a failure.

// asString renders scalar raw values as text. JSON numbers keep their
// original digits.
func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	}
	return "", false
}

func toPrice(v any) (float64, bool, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		p, err := parseFloat(x.String())
		if err != nil {
			return 0, false, err
		}
		f = p
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		p, err := parseFloat(s)
		if err != nil {
			return 0, false, err
		}
		f = p
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	default:
		return 0, false, ErrUnsupportedType
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, ErrInvalidNumber
	}
	if f < 0 {
		return 0, false, ErrNegative
	}
	return f, true, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrOutOfRange
		}
		return 0, ErrInvalidNumber
	}
	return f, nil
}

func toQuantity(v any) (int32, bool, error) {
	var n int64
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, false, ErrNotIntegral
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return 0, false, ErrOutOfRange
		}
		n = int64(x)
	case json.Number:
		i, err := parseInt(x.String())
		if err != nil {
			return 0, false, err
		}
		n = i
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		i, err := parseInt(s)
		if err != nil {
			return 0, false, err
		}
		n = i
	case int64:
		n = x
	case int:
		n = int64(x)
	default:
		return 0, false, ErrUnsupportedType
	}
	if n < 0 {
		return 0, false, ErrNegative
	}
	if n > math.MaxInt32 {
		return 0, false, ErrOutOfRange
	}
	return int32(n), true, nil
}

func parseInt(s string) (int64, error) {
	if i, ok := toIntFast(s); ok {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrOutOfRange
		}
		return 0, ErrInvalidNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidNumber
	}
	if f != math.Trunc(f) {
		return 0, ErrNotIntegral
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, ErrOutOfRange
	}
	return int64(f), nil
}

// toIntFast parses integers quickly and only falls back to float parsing when
// the field contains a '.' (supporting inputs like "42.0").
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
				return int64(f), true
			}
		}
	}
	return 0, false
}

func toTimestamp(v any, layouts []string, loc *time.Location) (time.Time, bool, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false, nil
		}
		for _, l := range layouts {
			if t, err := time.ParseInLocation(l, s, loc); err == nil {
				return t.UTC(), true, nil
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			t, err := fromEpoch(f)
			return t, err == nil, err
		}
		return time.Time{}, false, ErrInvalidTimestamp
	case float64:
		t, err := fromEpoch(x)
		return t, err == nil, err
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return time.Time{}, false, ErrInvalidTimestamp
		}
		t, err := fromEpoch(f)
		return t, err == nil, err
	case time.Time:
		return x.UTC(), true, nil
	}
	return time.Time{}, false, ErrUnsupportedType
}

// fromEpoch converts Unix seconds (fractional allowed, microsecond
// precision) to UTC.
func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= maxEpochSeconds {
		return time.Time{}, ErrInvalidTimestamp
	}
	sec := math.Floor(f)
	micros := math.Round((f - sec) * 1e6)
	return time.Unix(int64(sec), int64(micros)*int64(time.Microsecond)).UTC(), nil
}

// display renders a raw value for error reports.
func display(v any) string {
	if s, ok := asString(v); ok {
		return s
	}
	return "<unsupported>"
}
