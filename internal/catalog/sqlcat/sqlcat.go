// Package sqlcat implements catalog.Catalog over database/sql. The sqlite,
// mysql, mssql and postgres backends share it and differ only in their
// Dialect.
//
// Every upsert is a delete followed by an insert inside one transaction, so
// all dialects run the same statements. Times are stored as fixed-width UTC
// text, which sorts lexically.
package sqlcat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecommetl/internal/catalog"
	"ecommetl/internal/ddl"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// now is a test seam.
var now = func() time.Time { return time.Now().UTC() }

// Catalog is a database/sql-backed catalog.Catalog.
type Catalog struct {
	db      *sql.DB
	d       Dialect
	closeFn func() error
}

var _ catalog.Catalog = (*Catalog)(nil)

// New wraps an open database. closeFn, when non-nil, replaces db.Close.
func New(db *sql.DB, d Dialect, closeFn func() error) *Catalog {
	if closeFn == nil {
		closeFn = db.Close
	}
	return &Catalog{db: db, d: d, closeFn: closeFn}
}

// Close releases the connection pool.
func (c *Catalog) Close() error { return c.closeFn() }

// Migrate creates the catalog tables when they are missing.
func (c *Catalog) Migrate(ctx context.Context) error {
	for _, t := range catalog.Tables() {
		stmt, err := ddl.BuildCreateTableSQL(c.d.Dialect, t)
		if err != nil {
			return err
		}
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: create %s: %w", c.d.Name, t.Name, err)
		}
	}
	return nil
}

func (c *Catalog) q(s string) string { return c.d.Rebind(s) }

// EnsureDatabase registers name if it is not known yet.
func (c *Catalog) EnsureDatabase(ctx context.Context, name string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error { return c.ensureDatabase(ctx, tx, name) })
}

func (c *Catalog) ensureDatabase(ctx context.Context, tx *sql.Tx, name string) error {
	var n int
	err := tx.QueryRowContext(ctx,
		c.q("SELECT COUNT(*) FROM "+catalog.TableDatabases+" WHERE database_name = ?"), name).Scan(&n)
	if err != nil {
		return fmt.Errorf("%s: lookup database %s: %w", c.d.Name, name, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		c.q("INSERT INTO "+catalog.TableDatabases+" (database_name, created_at) VALUES (?, ?)"),
		name, now().Format(timeLayout)); err != nil {
		return fmt.Errorf("%s: insert database %s: %w", c.d.Name, name, err)
	}
	return nil
}

// GetTable returns the definition of database.table.
func (c *Catalog) GetTable(ctx context.Context, database, table string) (catalog.Table, error) {
	row := c.db.QueryRowContext(ctx, c.q(`SELECT table_location, table_format, compression,
		columns_json, partition_keys_json, parameters_json, updated_at
		FROM `+catalog.TableTables+` WHERE database_name = ? AND table_name = ?`), database, table)

	t := catalog.Table{Database: database, Name: table}
	var cols, keys, params, updated string
	err := row.Scan(&t.Location, &t.Format, &t.Compression, &cols, &keys, &params, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Table{}, fmt.Errorf("%w: %s.%s", catalog.ErrTableNotFound, database, table)
	}
	if err != nil {
		return catalog.Table{}, fmt.Errorf("%s: get table %s.%s: %w", c.d.Name, database, table, err)
	}
	if err := unmarshalAll(
		field{"columns_json", cols, &t.Columns},
		field{"partition_keys_json", keys, &t.PartitionKeys},
		field{"parameters_json", params, &t.Parameters},
	); err != nil {
		return catalog.Table{}, fmt.Errorf("%s: table %s.%s: %w", c.d.Name, database, table, err)
	}
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// UpsertTable creates or replaces t.
func (c *Catalog) UpsertTable(ctx context.Context, t catalog.Table) error {
	return c.inTx(ctx, func(tx *sql.Tx) error { return c.replaceTable(ctx, tx, t) })
}

func (c *Catalog) tableExists(ctx context.Context, tx *sql.Tx, database, table string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		c.q("SELECT COUNT(*) FROM "+catalog.TableTables+" WHERE database_name = ? AND table_name = ?"),
		database, table).Scan(&n)
	return n > 0, err
}

func (c *Catalog) replaceTable(ctx context.Context, tx *sql.Tx, t catalog.Table) error {
	cols, err := json.Marshal(nonNil(t.Columns))
	if err != nil {
		return err
	}
	keys, err := json.Marshal(nonNil(t.PartitionKeys))
	if err != nil {
		return err
	}
	params := t.Parameters
	if params == nil {
		params = map[string]string{}
	}
	pj, err := json.Marshal(params)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		c.q("DELETE FROM "+catalog.TableTables+" WHERE database_name = ? AND table_name = ?"),
		t.Database, t.Name); err != nil {
		return fmt.Errorf("%s: replace table %s: %w", c.d.Name, t.FQN(), err)
	}
	if _, err := tx.ExecContext(ctx, c.q(`INSERT INTO `+catalog.TableTables+`
		(database_name, table_name, table_location, table_format, compression,
		 columns_json, partition_keys_json, parameters_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.Database, t.Name, t.Location, t.Format, t.Compression,
		string(cols), string(keys), string(pj), now().Format(timeLayout)); err != nil {
		return fmt.Errorf("%s: insert table %s: %w", c.d.Name, t.FQN(), err)
	}
	return nil
}

// CommitPartitions registers parts for t. See catalog.Catalog.
func (c *Catalog) CommitPartitions(ctx context.Context, t catalog.Table, parts []catalog.Partition, updateSchema bool) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := c.ensureDatabase(ctx, tx, t.Database); err != nil {
			return err
		}
		exists, err := c.tableExists(ctx, tx, t.Database, t.Name)
		if err != nil {
			return fmt.Errorf("%s: lookup table %s: %w", c.d.Name, t.FQN(), err)
		}
		if !exists || updateSchema {
			if err := c.replaceTable(ctx, tx, t); err != nil {
				return err
			}
		}

		del := c.q("DELETE FROM " + catalog.TablePartitions +
			" WHERE database_name = ? AND table_name = ? AND partition_key = ?")
		ins := c.q(`INSERT INTO ` + catalog.TablePartitions + `
			(database_name, table_name, partition_key, values_json, partition_location,
			 record_count, file_count, byte_count, checksum, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		ts := now().Format(timeLayout)
		for _, p := range parts {
			key := p.Key(t.PartitionKeys)
			vals, err := json.Marshal(nonNil(p.Values))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, del, t.Database, t.Name, key); err != nil {
				return fmt.Errorf("%s: replace partition %s %s: %w", c.d.Name, t.FQN(), key, err)
			}
			if _, err := tx.ExecContext(ctx, ins, t.Database, t.Name, key, string(vals), p.Location,
				p.Records, int64(p.Files), p.Bytes, p.Checksum, ts); err != nil {
				return fmt.Errorf("%s: insert partition %s %s: %w", c.d.Name, t.FQN(), key, err)
			}
		}
		return nil
	})
}

// ListPartitions returns the partitions of database.table ordered by key.
func (c *Catalog) ListPartitions(ctx context.Context, database, table string) ([]catalog.Partition, error) {
	rows, err := c.db.QueryContext(ctx, c.q(`SELECT values_json, partition_location, record_count,
		file_count, byte_count, checksum, updated_at
		FROM `+catalog.TablePartitions+` WHERE database_name = ? AND table_name = ?
		ORDER BY partition_key`), database, table)
	if err != nil {
		return nil, fmt.Errorf("%s: list partitions %s.%s: %w", c.d.Name, database, table, err)
	}
	defer rows.Close()

	var out []catalog.Partition
	for rows.Next() {
		var (
			p       catalog.Partition
			vals    string
			files   int64
			updated string
		)
		if err := rows.Scan(&vals, &p.Location, &p.Records, &files, &p.Bytes, &p.Checksum, &updated); err != nil {
			return nil, fmt.Errorf("%s: scan partition: %w", c.d.Name, err)
		}
		if err := json.Unmarshal([]byte(vals), &p.Values); err != nil {
			return nil, fmt.Errorf("%s: partition values: %w", c.d.Name, err)
		}
		p.Files = int(files)
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// StartRun inserts r into the run ledger.
func (c *Catalog) StartRun(ctx context.Context, r catalog.Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = now()
	}
	if r.Status == "" {
		r.Status = catalog.RunRunning
	}
	_, err := c.db.ExecContext(ctx, c.q(`INSERT INTO `+catalog.TableRuns+`
		(run_id, job_name, status, started_at, rows_read, rows_written, rows_rejected, rows_nulled, rows_deduped)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, 0)`),
		r.ID, r.Job, r.Status, r.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("%s: start run %s: %w", c.d.Name, r.ID, err)
	}
	return nil
}

// FinishRun records r's final status and counters.
func (c *Catalog) FinishRun(ctx context.Context, r catalog.Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = now()
	}
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	res, err := c.db.ExecContext(ctx, c.q(`UPDATE `+catalog.TableRuns+` SET
		status = ?, finished_at = ?, rows_read = ?, rows_written = ?, rows_rejected = ?,
		rows_nulled = ?, rows_deduped = ?, error_text = ?
		WHERE run_id = ?`),
		r.Status, r.FinishedAt.UTC().Format(timeLayout), r.Read, r.Written, r.Rejected,
		r.Nulled, r.Deduped, errText, r.ID)
	if err != nil {
		return fmt.Errorf("%s: finish run %s: %w", c.d.Name, r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: finish run %s: run not started", c.d.Name, r.ID)
	}
	return nil
}

// GetRun returns one ledger entry. It is not part of catalog.Catalog; the
// CLI and tests use it through a type assertion.
func (c *Catalog) GetRun(ctx context.Context, id string) (catalog.Run, error) {
	var (
		r                 catalog.Run
		started           string
		finished, errText sql.NullString
	)
	err := c.db.QueryRowContext(ctx, c.q(`SELECT run_id, job_name, status, started_at, finished_at,
		rows_read, rows_written, rows_rejected, rows_nulled, rows_deduped, error_text
		FROM `+catalog.TableRuns+` WHERE run_id = ?`), id).Scan(
		&r.ID, &r.Job, &r.Status, &started, &finished,
		&r.Read, &r.Written, &r.Rejected, &r.Nulled, &r.Deduped, &errText)
	if err != nil {
		return catalog.Run{}, fmt.Errorf("%s: get run %s: %w", c.d.Name, id, err)
	}
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	r.Error = errText.String
	return r, nil
}

func (c *Catalog) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", c.d.Name, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", c.d.Name, err)
	}
	return nil
}

type field struct {
	name string
	raw  string
	dst  any
}

func unmarshalAll(fs ...field) error {
	for _, f := range fs {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
