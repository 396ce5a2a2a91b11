package storage

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/zeebo/xxh3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommetl/internal/schema"
)

func TestEventRow_ColumnOrder(t *testing.T) {
	fields := parquet.SchemaOf(eventRow{}).Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	assert.Equal(t, schema.Columns(), names)
}

func TestEventRow_RoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(2024, 3, 5, 10, 30, 0, 123456000, time.UTC),
		time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC),
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		e := event("e1", ts, 19.99, 2)
		got := toEvent(toRow(e))
		assert.Equal(t, e.Values(), got.Values(), ts.String())
		assert.True(t, got.EventDateOnly.Equal(schema.DateOf(*got.Timestamp, time.UTC)))
	}

	empty := toEvent(toRow(schema.Event{}))
	for _, v := range empty.Values() {
		assert.Nil(t, v)
	}
}

func TestEventRow_NullTimestampThroughParquet(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 0, 123456000, time.UTC)
	full := event("e1", ts, 19.99, 2)
	bare := schema.Event{EventID: ptr("e2"), Price: ptr(1.5)}

	var buf bytes.Buffer
	require.NoError(t, parquet.Write(&buf, []eventRow{toRow(full), toRow(bare)}, parquet.Compression(&parquet.Snappy)))

	rows, err := parquet.Read[eventRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, full.Values(), toEvent(rows[0]).Values())
	got := toEvent(rows[1])
	assert.Nil(t, got.Timestamp)
	assert.Nil(t, got.EventDateOnly)
	assert.Equal(t, "e2", *got.EventID)
	assert.Equal(t, 1.5, *got.Price)

	sch := parquet.SchemaOf(eventRow{})
	for _, name := range []string{"timestamp", "event_date_only"} {
		leaf, ok := sch.Lookup(name)
		require.True(t, ok, name)
		assert.True(t, leaf.Node.Optional(), name)
	}
}

func TestRowDigest(t *testing.T) {
	h := xxh3.New()
	ts := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	a := toRow(event("e1", ts, 19.99, 2))
	assert.Equal(t, rowDigest(h, a), rowDigest(h, a))

	b := a
	b.Price = ptr(19.98)
	assert.NotEqual(t, rowDigest(h, a), rowDigest(h, b))

	// A value moved to the neighbouring column must change the digest.
	c, d := toRow(schema.Event{UserID: ptr("x")}), toRow(schema.Event{SessionID: ptr("x")})
	assert.NotEqual(t, rowDigest(h, c), rowDigest(h, d))
	assert.NotEqual(t, rowDigest(h, toRow(schema.Event{})), rowDigest(h, toRow(schema.Event{UserID: ptr("")})))
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(-1), floorDiv(-1, 86400))
	assert.Equal(t, int64(0), floorDiv(0, 86400))
	assert.Equal(t, int64(1), floorDiv(86400, 86400))
	assert.Equal(t, int64(-1), floorDiv(-86400, 86400))
}

func TestCodec(t *testing.T) {
	for name, ext := range map[string]string{
		"":       ".snappy.parquet",
		"snappy": ".snappy.parquet",
		"gzip":   ".gz.parquet",
		"zstd":   ".zstd.parquet",
		"lz4":    ".lz4.parquet",
		"none":   ".parquet",
	} {
		_, got, err := codec(name)
		assert.NoError(t, err, name)
		assert.Equal(t, ext, got, name)
	}
	_, _, err := codec("lzo")
	assert.Error(t, err)
}
