package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommetl/internal/catalog"
	"ecommetl/internal/catalog/sqlcat"
	"ecommetl/internal/config"
)

func openTemp(t *testing.T) *sqlcat.Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func rawTable() catalog.Table {
	return catalog.Table{
		Database: "ecommerce_raw_db",
		Name:     "data",
		Location: "s3://yourname-ecomm-raw-data-lake/",
		Format:   "json",
		Columns: []catalog.Column{
			{Name: "event_id", Type: "string"},
			{Name: "price", Type: "string"},
		},
		PartitionKeys: []string{"year", "month", "day"},
		Parameters:    map[string]string{"classification": "json"},
	}
}

func TestCatalog_MigrateIsIdempotent(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Migrate(context.Background()))
}

func TestCatalog_TableRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	_, err := c.GetTable(ctx, "ecommerce_raw_db", "data")
	require.ErrorIs(t, err, catalog.ErrTableNotFound)

	require.NoError(t, c.UpsertTable(ctx, rawTable()))
	got, err := c.GetTable(ctx, "ecommerce_raw_db", "data")
	require.NoError(t, err)
	assert.Equal(t, "s3://yourname-ecomm-raw-data-lake/", got.Location)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, []string{"event_id", "price"}, got.ColumnNames())
	assert.Equal(t, []string{"year", "month", "day"}, got.PartitionKeys)
	assert.Equal(t, "json", got.Parameters["classification"])
	assert.False(t, got.UpdatedAt.IsZero())

	// Upsert replaces.
	tbl := rawTable()
	tbl.Format = "csv"
	require.NoError(t, c.UpsertTable(ctx, tbl))
	got, err = c.GetTable(ctx, "ecommerce_raw_db", "data")
	require.NoError(t, err)
	assert.Equal(t, "csv", got.Format)
}

func processed(cols ...string) catalog.Table {
	t := catalog.Table{
		Database:      "ecommerce_processed_db",
		Name:          "events",
		Location:      "/lake/processed_events/",
		Format:        "parquet",
		Compression:   "snappy",
		PartitionKeys: []string{"year", "month", "day"},
	}
	for _, c := range cols {
		t.Columns = append(t.Columns, catalog.Column{Name: c, Type: "string"})
	}
	return t
}

func TestCatalog_CommitPartitions(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	day5 := catalog.Partition{Values: []string{"2024", "03", "05"}, Location: "/lake/processed_events/year=2024/month=03/day=05/", Records: 2, Files: 1, Bytes: 900, Checksum: "abc"}
	day6 := catalog.Partition{Values: []string{"2024", "03", "06"}, Location: "/lake/processed_events/year=2024/month=03/day=06/", Records: 1, Files: 1, Bytes: 500, Checksum: "def"}

	require.NoError(t, c.CommitPartitions(ctx, processed("event_id"), []catalog.Partition{day6, day5}, true))

	parts, err := c.ListPartitions(ctx, "ecommerce_processed_db", "events")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, []string{"2024", "03", "05"}, parts[0].Values)
	assert.Equal(t, int64(2), parts[0].Records)
	assert.Equal(t, 1, parts[0].Files)
	assert.Equal(t, "abc", parts[0].Checksum)

	// Same partition again replaces rather than duplicates.
	day5.Records = 7
	require.NoError(t, c.CommitPartitions(ctx, processed("event_id"), []catalog.Partition{day5}, true))
	parts, err = c.ListPartitions(ctx, "ecommerce_processed_db", "events")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, int64(7), parts[0].Records)
}

func TestCatalog_UpdateBehavior(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	require.NoError(t, c.CommitPartitions(ctx, processed("event_id"), nil, false))
	got, err := c.GetTable(ctx, "ecommerce_processed_db", "events")
	require.NoError(t, err, "LOG still creates a missing table")
	assert.Equal(t, []string{"event_id"}, got.ColumnNames())

	// LOG leaves an existing definition alone.
	require.NoError(t, c.CommitPartitions(ctx, processed("event_id", "price"), nil, false))
	got, err = c.GetTable(ctx, "ecommerce_processed_db", "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"event_id"}, got.ColumnNames())

	// UPDATE_IN_DATABASE replaces it.
	require.NoError(t, c.CommitPartitions(ctx, processed("event_id", "price"), nil, true))
	got, err = c.GetTable(ctx, "ecommerce_processed_db", "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"event_id", "price"}, got.ColumnNames())
}

func TestCatalog_EnsureDatabase(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)
	require.NoError(t, c.EnsureDatabase(ctx, "ecommerce_processed_db"))
	require.NoError(t, c.EnsureDatabase(ctx, "ecommerce_processed_db"))
}

func TestCatalog_RunLedger(t *testing.T) {
	ctx := context.Background()
	c := openTemp(t)

	start := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.StartRun(ctx, catalog.Run{ID: "r1", Job: "ecommerce-raw-to-processed", StartedAt: start}))

	r, err := c.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, catalog.RunRunning, r.Status)
	assert.True(t, r.StartedAt.Equal(start))
	assert.True(t, r.FinishedAt.IsZero())

	require.NoError(t, c.FinishRun(ctx, catalog.Run{
		ID: "r1", Status: catalog.RunFailed, Read: 10, Written: 7, Rejected: 2, Deduped: 1, Error: "boom",
	}))
	r, err = c.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, catalog.RunFailed, r.Status)
	assert.Equal(t, int64(10), r.Read)
	assert.Equal(t, int64(7), r.Written)
	assert.Equal(t, "boom", r.Error)
	assert.False(t, r.FinishedAt.IsZero())

	err = c.FinishRun(ctx, catalog.Run{ID: "missing", Status: catalog.RunSucceeded})
	assert.Error(t, err)
}

func TestRegisteredKind(t *testing.T) {
	c, err := catalog.Open(context.Background(), config.Catalog{
		Kind:        "sqlite",
		DSN:         filepath.Join(t.TempDir(), "c.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.UpsertTable(context.Background(), rawTable()))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}
