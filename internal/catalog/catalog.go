// Package catalog is the metadata catalog the job reads its source table from
// and registers its output table and partitions in. It plays the role a Hive
// metastore or AWS Glue Data Catalog plays for the original pipeline.
//
// Backends register a Factory per kind from their init functions; importing
// ecommetl/internal/catalog/all enables postgres, sqlite, mysql and mssql.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ecommetl/internal/config"
)

// ErrTableNotFound is returned by GetTable for an unknown database or table.
var ErrTableNotFound = errors.New("catalog: table not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Column is one column of a cataloged table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a cataloged dataset: where its objects live, how they are encoded
// and how they are partitioned.
type Table struct {
	Database      string
	Name          string
	Location      string
	Format        string
	Compression   string
	Columns       []Column
	PartitionKeys []string
	Parameters    map[string]string
	UpdatedAt     time.Time
}

// ColumnNames returns the table's column names in order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// FQN returns "database.table".
func (t Table) FQN() string { return t.Database + "." + t.Name }

// Partition is one registered partition of a table. Values align with the
// table's PartitionKeys.
type Partition struct {
	Values    []string
	Location  string
	Records   int64
	Files     int
	Bytes     int64
	Checksum  string
	UpdatedAt time.Time
}

// Key renders the partition values as a Hive path, e.g.
// "year=2024/month=03/day=05".
func (p Partition) Key(keys []string) string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		k := fmt.Sprintf("p%d", i)
		if i < len(keys) {
			k = keys[i]
		}
		parts[i] = k + "=" + v
	}
	return strings.Join(parts, "/")
}

// Run is one entry of the job run ledger.
type Run struct {
	ID         string
	Job        string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Read       int64
	Written    int64
	Rejected   int64
	Nulled     int64
	Deduped    int64
	Error      string
}

// Catalog is implemented by every backend.
type Catalog interface {
	// Migrate creates the catalog's own tables when they are missing.
	Migrate(ctx context.Context) error

	// EnsureDatabase registers database name if it is not known yet.
	EnsureDatabase(ctx context.Context, name string) error

	// GetTable returns the table definition or an error matching
	// ErrTableNotFound.
	GetTable(ctx context.Context, database, table string) (Table, error)

	// UpsertTable creates or replaces a table definition.
	UpsertTable(ctx context.Context, t Table) error

	// CommitPartitions registers parts for t in one transaction. The table is
	// created when missing; an existing definition is replaced only when
	// updateSchema is set. Partitions with the same values are replaced.
	CommitPartitions(ctx context.Context, t Table, parts []Partition, updateSchema bool) error

	// ListPartitions returns the table's partitions ordered by key.
	ListPartitions(ctx context.Context, database, table string) ([]Partition, error)

	// StartRun records a new run; FinishRun updates its final state.
	StartRun(ctx context.Context, r Run) error
	FinishRun(ctx context.Context, r Run) error

	Close() error
}

// Factory opens a Catalog for cfg.
type Factory func(ctx context.Context, cfg config.Catalog) (Catalog, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register binds kind to f. It is typically called from a backend's init.
// Registering a kind twice panics.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("catalog: duplicate kind " + kind)
	}
	factories[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open opens the catalog for cfg.Kind and, when cfg.AutoMigrate is set,
// creates its tables.
func Open(ctx context.Context, cfg config.Catalog) (Catalog, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: no backend registered for kind %q (have %v)", cfg.Kind, Kinds())
	}
	c, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", cfg.Kind, err)
	}
	if cfg.AutoMigrate {
		if err := c.Migrate(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("catalog: migrate %s: %w", cfg.Kind, err)
		}
	}
	return c, nil
}
