// Package sqlite provides a SQLite warehouse adapter on the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/dialect"

	_ "modernc.org/sqlite" // sqlite driver
)

// Dialect is the SQLite dialect. Decimals and dates are stored as TEXT so
// values round-trip exactly.
var Dialect = dialect.NewDialect("sqlite").
	Schemaless().
	PlaceholderStyle(dialect.PlaceholderQuestion).
	Type(core.TypeInteger, "INTEGER").
	Type(core.TypeDecimal, "TEXT").
	Type(core.TypeDate, "TEXT").
	Type(core.TypeTimestamp, "TEXT").
	Type(core.TypeString, "TEXT").
	Type(core.TypeBoolean, "INTEGER").
	WithReservedWords("order", "group", "table", "select", "from", "where", "index").
	Build()

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, SQLDialect: Dialect},
	}
}

// Connect opens the database file at cfg.Path (":memory:" when empty).
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	// One writer at a time; in-memory databases also live per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// GetTableMetadata reads column metadata with pragma_table_info.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := a.DB.QueryContext(ctx, `SELECT name, type, "notnull", cid FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.ColumnMetadata
	for rows.Next() {
		var col core.ColumnMetadata
		var notNull int
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = notNull == 0
		col.Position++
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: %w", table, adapter.ErrTableNotFound)
	}

	var count int64
	//nolint:gosec // quoted by dialect
	if err := a.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Dialect.QuoteIdentifier(table)).Scan(&count); err != nil {
		count = 0
	}
	return &adapter.Metadata{Name: table, Columns: columns, RowCount: count}, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
