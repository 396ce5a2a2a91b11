package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommetl/internal/config"
)

type stubCatalog struct {
	Catalog
	migrateErr error
	migrated   bool
	closed     bool
}

func (s *stubCatalog) Migrate(context.Context) error { s.migrated = true; return s.migrateErr }
func (s *stubCatalog) Close() error                  { s.closed = true; return nil }

func TestOpen_Registry(t *testing.T) {
	stub := &stubCatalog{}
	Register("stub-ok", func(context.Context, config.Catalog) (Catalog, error) { return stub, nil })

	c, err := Open(context.Background(), config.Catalog{Kind: "stub-ok", AutoMigrate: true})
	require.NoError(t, err)
	assert.Same(t, stub, c)
	assert.True(t, stub.migrated)
	assert.Contains(t, Kinds(), "stub-ok")

	_, err = Open(context.Background(), config.Catalog{Kind: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `kind "nope"`)

	assert.Panics(t, func() {
		Register("stub-ok", func(context.Context, config.Catalog) (Catalog, error) { return nil, nil })
	})
}

func TestOpen_MigrateFailureCloses(t *testing.T) {
	stub := &stubCatalog{migrateErr: errors.New("no perms")}
	Register("stub-fail", func(context.Context, config.Catalog) (Catalog, error) { return stub, nil })

	_, err := Open(context.Background(), config.Catalog{Kind: "stub-fail", AutoMigrate: true})
	require.Error(t, err)
	assert.True(t, stub.closed)
}

func TestPartitionKey(t *testing.T) {
	p := Partition{Values: []string{"2024", "03", "05"}}
	assert.Equal(t, "year=2024/month=03/day=05", p.Key([]string{"year", "month", "day"}))
	assert.Equal(t, "year=2024/p1=03/p2=05", p.Key([]string{"year"}))
}

func TestTablesCoverLedger(t *testing.T) {
	names := map[string]bool{}
	for _, td := range Tables() {
		names[td.Name] = true
	}
	for _, want := range []string{TableDatabases, TableTables, TablePartitions, TableRuns} {
		assert.True(t, names[want], want)
	}
	assert.Equal(t, "db.t", Table{Database: "db", Name: "t"}.FQN())
}
