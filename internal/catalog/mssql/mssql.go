// Package mssql registers the "mssql" catalog backend
// (microsoft/go-mssqldb). SQL Server has no CREATE TABLE IF NOT EXISTS, so
// the catalog tables are created behind an OBJECT_ID guard.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"ecommetl/internal/catalog"
	"ecommetl/internal/catalog/sqlcat"
	"ecommetl/internal/config"
	"ecommetl/internal/ddl"
)

// Dialect is the SQL Server rendering of the catalog schema. Key columns are
// sized so a three-column primary key fits the 900-byte index limit.
var Dialect = sqlcat.Dialect{
	Dialect: ddl.Dialect{
		Name:  "mssql",
		Quote: ddl.Bracket,
		Types: map[ddl.Type]string{
			ddl.TypeKey:   "NVARCHAR(128)",
			ddl.TypeText:  "NVARCHAR(MAX)",
			ddl.TypeInt64: "BIGINT",
			ddl.TypeTime:  "NVARCHAR(32)",
		},
	},
	Placeholder: sqlcat.AtP,
}

func init() {
	catalog.Register("mssql", func(ctx context.Context, cfg config.Catalog) (catalog.Catalog, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open validates dsn and opens a SQL Server catalog.
func Open(ctx context.Context, dsn string) (*sqlcat.Catalog, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return sqlcat.New(db, Dialect, nil), nil
}
