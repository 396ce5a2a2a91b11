// Package mysql registers the "mysql" catalog backend (go-sql-driver/mysql).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"ecommetl/internal/catalog"
	"ecommetl/internal/catalog/sqlcat"
	"ecommetl/internal/config"
	"ecommetl/internal/ddl"
)

// Dialect is the MySQL rendering of the catalog schema. Key columns stay
// under the InnoDB index size limit for utf8mb4.
var Dialect = sqlcat.Dialect{
	Dialect: ddl.Dialect{
		Name:  "mysql",
		Quote: ddl.Backtick,
		Types: map[ddl.Type]string{
			ddl.TypeKey:   "VARCHAR(191)",
			ddl.TypeText:  "TEXT",
			ddl.TypeInt64: "BIGINT",
			ddl.TypeTime:  "VARCHAR(32)",
		},
		IfNotExists: true,
	},
	Placeholder: sqlcat.Question,
}

func init() {
	catalog.Register("mysql", func(ctx context.Context, cfg config.Catalog) (catalog.Catalog, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open validates dsn and opens a MySQL catalog.
func Open(ctx context.Context, dsn string) (*sqlcat.Catalog, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return sqlcat.New(db, Dialect, nil), nil
}
