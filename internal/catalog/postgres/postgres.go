// Package postgres registers the "postgres" catalog backend. Connections come
// from a pgx v5 pool; the shared database/sql catalog runs on top of it
// through pgx's stdlib adapter.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"ecommetl/internal/catalog"
	"ecommetl/internal/catalog/sqlcat"
	"ecommetl/internal/config"
	"ecommetl/internal/ddl"
)

// Dialect is the Postgres rendering of the catalog schema.
var Dialect = sqlcat.Dialect{
	Dialect: ddl.Dialect{
		Name:  "postgres",
		Quote: ddl.DoubleQuote,
		Types: map[ddl.Type]string{
			ddl.TypeKey:   "TEXT",
			ddl.TypeText:  "TEXT",
			ddl.TypeInt64: "BIGINT",
			ddl.TypeTime:  "TEXT",
		},
		IfNotExists: true,
	},
	Placeholder: sqlcat.Dollar,
}

func init() {
	catalog.Register("postgres", func(ctx context.Context, cfg config.Catalog) (catalog.Catalog, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open connects a pool to dsn and returns a catalog over it. Closing the
// catalog closes the pool.
func Open(ctx context.Context, dsn string) (*sqlcat.Catalog, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	closeFn := func() error {
		err := db.Close()
		pool.Close()
		return err
	}
	return sqlcat.New(db, Dialect, closeFn), nil
}
