// Package mssql provides a Microsoft SQL Server warehouse adapter.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/dialect"
	mssql "github.com/microsoft/go-mssqldb"
)

// Dialect is the SQL Server dialect.
var Dialect = dialect.NewDialect("mssql").
	Identifiers("[", "]", "]]").
	DefaultSchema("dbo").
	CreateSchema("IF SCHEMA_ID('%[2]s') IS NULL EXEC('CREATE SCHEMA %[1]s')").
	PlaceholderStyle(dialect.PlaceholderAtP).
	Type(core.TypeTimestamp, "DATETIME2").
	Type(core.TypeString, "NVARCHAR(255)").
	Type(core.TypeBoolean, "BIT").
	WithReservedWords("order", "group", "table", "select", "from", "where", "index", "key", "user").
	Build()

// Adapter implements the adapter.Adapter interface for SQL Server.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQL Server adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, SQLDialect: Dialect},
	}
}

// Connect establishes a connection to SQL Server.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	a.Logger.Debug("connecting to mssql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("sqlserver", buildMSSQLDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open mssql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping mssql: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildMSSQLDSN constructs a sqlserver:// URL.
func buildMSSQLDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}

	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

// BulkLoad appends rows to schema.table with the TDS bulk copy protocol.
func (a *Adapter) BulkLoad(ctx context.Context, schema, table string, columns []string, rows [][]any) (int64, error) {
	if a.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(Dialect.QualifiedName(schema, table), mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

var (
	_ adapter.Adapter    = (*Adapter)(nil)
	_ adapter.BulkLoader = (*Adapter)(nil)
)
