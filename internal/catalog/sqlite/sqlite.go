// Package sqlite registers the "sqlite" catalog backend (modernc.org/sqlite,
// pure Go). It is the default for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ecommetl/internal/catalog"
	"ecommetl/internal/catalog/sqlcat"
	"ecommetl/internal/config"
	"ecommetl/internal/ddl"
)

// Dialect is the SQLite rendering of the catalog schema.
var Dialect = sqlcat.Dialect{
	Dialect: ddl.Dialect{
		Name:  "sqlite",
		Quote: ddl.DoubleQuote,
		Types: map[ddl.Type]string{
			ddl.TypeKey:   "TEXT",
			ddl.TypeText:  "TEXT",
			ddl.TypeInt64: "INTEGER",
			ddl.TypeTime:  "TEXT",
		},
		IfNotExists: true,
	},
	Placeholder: sqlcat.Question,
}

func init() {
	catalog.Register("sqlite", func(ctx context.Context, cfg config.Catalog) (catalog.Catalog, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open opens a SQLite catalog. DSN is passed to the driver, e.g.
//
//	"file:catalog.db?_pragma=busy_timeout(5000)"
//	"catalog.db"
func Open(ctx context.Context, dsn string) (*sqlcat.Catalog, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; transactions never wait on another connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return sqlcat.New(db, Dialect, nil), nil
}
