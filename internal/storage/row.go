package storage

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/zeebo/xxh3"

	"ecommetl/internal/schema"
)

// eventRow is the Parquet layout of schema.Event. Field order is the output
// column order. Pointer fields are optional columns.
//
// parquet-go rejects logical-type tags on pointer fields, so Timestamp and
// EventDateOnly are plain optional integers whose zero value is written as
// null: an event at exactly 1970-01-01T00:00:00Z, or dated 1970-01-01,
// reads back with a null timestamp or date.
type eventRow struct {
	EventID       *string  `parquet:"event_id"`
	Timestamp     int64    `parquet:"timestamp,optional,timestamp(microsecond)"`
	EventDateOnly int32    `parquet:"event_date_only,optional,date"`
	UserID        *string  `parquet:"user_id"`
	SessionID     *string  `parquet:"session_id"`
	EventType     *string  `parquet:"event_type"`
	PageURL       *string  `parquet:"page_url"`
	ProductID     *string  `parquet:"product_id"`
	Category      *string  `parquet:"category"`
	Price         *float64 `parquet:"price"`
	Quantity      *int32   `parquet:"quantity"`
	PaymentMethod *string  `parquet:"payment_method"`
	Browser       *string  `parquet:"browser"`
	OS            *string  `parquet:"os"`
}

const secondsPerDay = 24 * 60 * 60

func toRow(e schema.Event) eventRow {
	r := eventRow{
		EventID:       e.EventID,
		UserID:        e.UserID,
		SessionID:     e.SessionID,
		EventType:     e.EventType,
		PageURL:       e.PageURL,
		ProductID:     e.ProductID,
		Category:      e.Category,
		Price:         e.Price,
		Quantity:      e.Quantity,
		PaymentMethod: e.PaymentMethod,
		Browser:       e.Browser,
		OS:            e.OS,
	}
	if e.Timestamp != nil {
		r.Timestamp = e.Timestamp.UnixMicro()
	}
	if e.EventDateOnly != nil {
		r.EventDateOnly = int32(floorDiv(e.EventDateOnly.Unix(), secondsPerDay))
	}
	return r
}

// toEvent converts a row read back from Parquet.
func toEvent(r eventRow) schema.Event {
	e := schema.Event{
		EventID:       r.EventID,
		UserID:        r.UserID,
		SessionID:     r.SessionID,
		EventType:     r.EventType,
		PageURL:       r.PageURL,
		ProductID:     r.ProductID,
		Category:      r.Category,
		Price:         r.Price,
		Quantity:      r.Quantity,
		PaymentMethod: r.PaymentMethod,
		Browser:       r.Browser,
		OS:            r.OS,
	}
	if r.Timestamp != 0 {
		t := time.UnixMicro(r.Timestamp).UTC()
		e.Timestamp = &t
	}
	if r.EventDateOnly != 0 {
		t := time.Unix(int64(r.EventDateOnly)*secondsPerDay, 0).UTC()
		e.EventDateOnly = &t
	}
	return e
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// rowDigest hashes the values of r with h. Each field is written with a
// null marker and a length prefix so adjacent fields cannot run together.
func rowDigest(h *xxh3.Hasher, r eventRow) uint64 {
	h.Reset()
	var b [9]byte
	str := func(s *string) {
		if s == nil {
			_, _ = h.Write(b[:1:1])
			return
		}
		b[0] = 1
		binary.LittleEndian.PutUint64(b[1:], uint64(len(*s)))
		_, _ = h.Write(b[:])
		_, _ = h.WriteString(*s)
		b[0] = 0
	}
	num := func(present bool, v uint64) {
		b[0] = 0
		if present {
			b[0] = 1
		}
		binary.LittleEndian.PutUint64(b[1:], v)
		_, _ = h.Write(b[:])
		b[0] = 0
	}

	str(r.EventID)
	num(r.Timestamp != 0, uint64(r.Timestamp))
	num(r.EventDateOnly != 0, uint64(r.EventDateOnly))
	str(r.UserID)
	str(r.SessionID)
	str(r.EventType)
	str(r.PageURL)
	str(r.ProductID)
	str(r.Category)
	if r.Price != nil {
		num(true, math.Float64bits(*r.Price))
	} else {
		num(false, 0)
	}
	if r.Quantity != nil {
		num(true, uint64(*r.Quantity))
	} else {
		num(false, 0)
	}
	str(r.PaymentMethod)
	str(r.Browser)
	str(r.OS)
	return h.Sum64()
}
