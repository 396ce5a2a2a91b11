package schema

import (
	"reflect"
	"testing"
	"time"
)

func TestColumns_FixedOrder(t *testing.T) {
	want := []string{
		"event_id", "timestamp", "event_date_only", "user_id", "session_id",
		"event_type", "page_url", "product_id", "category", "price", "quantity",
		"payment_method", "browser", "os",
	}
	if got := Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %v, want %v", got, want)
	}
}

func TestEventValues_AlignedAndNullable(t *testing.T) {
	var e Event
	vals := e.Values()
	if len(vals) != len(Fields) {
		t.Fatalf("len(Values()) = %d, want %d", len(vals), len(Fields))
	}
	for i, v := range vals {
		if v != nil {
			t.Errorf("zero Event value %d (%s) = %#v, want nil", i, Fields[i].Name, v)
		}
	}

	id, price, qty := "e1", 19.99, int32(2)
	ts := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	e = Event{EventID: &id, Timestamp: &ts, Price: &price, Quantity: &qty}
	vals = e.Values()
	if vals[0] != "e1" || vals[1] != ts || vals[9] != 19.99 || vals[10] != int32(2) {
		t.Fatalf("Values() = %#v", vals)
	}
}

func TestDateOf(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		loc  *time.Location
		want time.Time
	}{
		{nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{time.UTC, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{tokyo, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := DateOf(ts, tt.loc); !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Errorf("DateOf(%s, %v) = %s, want %s", ts, tt.loc, got, tt.want)
		}
	}
}
