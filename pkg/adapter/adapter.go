// Package adapter defines the warehouse connection contract used by the
// RAW, CURATED and PUBLISH layers.
//
// Concrete adapter implementations live in pkg/adapters/ subdirectories and
// register themselves from init().
package adapter

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/dialect"
)

type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata
)

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a statement that doesn't return rows.
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a statement that returns rows. Callers close the rows.
	Query(ctx context.Context, sql string, args ...any) (*sql.Rows, error)

	// BeginTx starts a transaction. Merges into a table run in one.
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// GetTableMetadata retrieves metadata for a table, or an error wrapping
	// ErrTableNotFound if it does not exist.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// Dialect returns the SQL dialect used to generate statements.
	Dialect() *dialect.Dialect
}

// ValueConverter is implemented by adapters whose driver returns values
// that need translating before they can be coerced to field types.
type ValueConverter interface {
	ConvertValue(v any) any
}

// BulkLoader is implemented by adapters with a native bulk load path
// (COPY, bulk copy). Rows are appended to an existing table.
type BulkLoader interface {
	BulkLoad(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error)
}
