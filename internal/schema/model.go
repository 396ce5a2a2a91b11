// Package schema defines the processed e-commerce event record written by the
// job and the fixed column order it is written in.
package schema

import "time"

// Event is one processed e-commerce event. Every field is nullable; a nil
// pointer is written as NULL.
//
// EventDateOnly is derived: it is always the calendar date of Timestamp (or
// nil when Timestamp is nil), held as midnight UTC of that date.
type Event struct {
	EventID       *string    `db:"event_id"`
	Timestamp     *time.Time `db:"timestamp"`
	EventDateOnly *time.Time `db:"event_date_only"`
	UserID        *string    `db:"user_id"`
	SessionID     *string    `db:"session_id"`
	EventType     *string    `db:"event_type"`
	PageURL       *string    `db:"page_url"`
	ProductID     *string    `db:"product_id"`
	Category      *string    `db:"category"`
	Price         *float64   `db:"price"`
	Quantity      *int32     `db:"quantity"`
	PaymentMethod *string    `db:"payment_method"`
	Browser       *string    `db:"browser"`
	OS            *string    `db:"os"`
}

// Column names, in output order.
const (
	ColEventID       = "event_id"
	ColTimestamp     = "timestamp"
	ColEventDateOnly = "event_date_only"
	ColUserID        = "user_id"
	ColSessionID     = "session_id"
	ColEventType     = "event_type"
	ColPageURL       = "page_url"
	ColProductID     = "product_id"
	ColCategory      = "category"
	ColPrice         = "price"
	ColQuantity      = "quantity"
	ColPaymentMethod = "payment_method"
	ColBrowser       = "browser"
	ColOS            = "os"
)

// Fields lists the output columns in their fixed order together with their
// logical types. Catalog registration and the Parquet schema both follow it.
var Fields = []Field{
	{Name: ColEventID, Type: "string", Nullable: true},
	{Name: ColTimestamp, Type: "timestamp", Nullable: true},
	{Name: ColEventDateOnly, Type: "date", Nullable: true},
	{Name: ColUserID, Type: "string", Nullable: true},
	{Name: ColSessionID, Type: "string", Nullable: true},
	{Name: ColEventType, Type: "string", Nullable: true},
	{Name: ColPageURL, Type: "string", Nullable: true},
	{Name: ColProductID, Type: "string", Nullable: true},
	{Name: ColCategory, Type: "string", Nullable: true},
	{Name: ColPrice, Type: "double", Nullable: true},
	{Name: ColQuantity, Type: "int", Nullable: true},
	{Name: ColPaymentMethod, Type: "string", Nullable: true},
	{Name: ColBrowser, Type: "string", Nullable: true},
	{Name: ColOS, Type: "string", Nullable: true},
}

// Columns returns the output column names in order.
func Columns() []string {
	out := make([]string, len(Fields))
	for i, f := range Fields {
		out[i] = f.Name
	}
	return out
}

// Values returns the record's values aligned with Columns(). Null fields are
// returned as untyped nil so callers can compare against nil directly.
func (e Event) Values() []any {
	return []any{
		str(e.EventID),
		tm(e.Timestamp),
		tm(e.EventDateOnly),
		str(e.UserID),
		str(e.SessionID),
		str(e.EventType),
		str(e.PageURL),
		str(e.ProductID),
		str(e.Category),
		f64(e.Price),
		i32(e.Quantity),
		str(e.PaymentMethod),
		str(e.Browser),
		str(e.OS),
	}
}

// DateOf returns the calendar date of t as observed in loc, expressed as
// midnight UTC of that date. A nil loc means UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func tm(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func f64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func i32(p *int32) any {
	if p == nil {
		return nil
	}
	return *p
}
