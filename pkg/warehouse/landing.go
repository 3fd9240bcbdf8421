package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
)

// Landing metadata columns appended to every RAW table.
const (
	ColRunID    = "_run_id"
	ColLoadedAt = "_loaded_at"
)

// RawLanding appends source records, untyped, to RAW tables. Every value is
// stored as text so RAW keeps exactly what the source delivered.
type RawLanding struct {
	adp    adapter.Adapter
	ns     string
	logger *slog.Logger
}

// NewRawLanding lands into namespace ns.
func NewRawLanding(adp adapter.Adapter, ns string, logger *slog.Logger) *RawLanding {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RawLanding{adp: adp, ns: ns, logger: logger}
}

// Land appends recs to table, creating it with the given columns when it
// does not exist. Fields outside columns are dropped.
func (l *RawLanding) Land(ctx context.Context, table string, columns []string, recs []core.RawRecord, runID string, loadedAt time.Time) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("land %s: no columns", table)
	}
	if err := l.ensure(ctx, table, columns); err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	cols := append(append([]string{}, columns...), ColRunID, ColLoadedAt)
	rows := make([][]any, len(recs))
	for i, r := range recs {
		row := make([]any, len(cols))
		for j, c := range columns {
			if v, ok := r[c]; ok && v != nil {
				row[j] = core.FormatValue(v)
			}
		}
		row[len(columns)] = runID
		row[len(columns)+1] = loadedAt.UTC()
		rows[i] = row
	}

	start := time.Now()
	var (
		n   int64
		err error
	)
	if bl, ok := l.adp.(adapter.BulkLoader); ok {
		n, err = bl.BulkLoad(ctx, l.ns, table, cols, rows)
	} else {
		n, err = l.insert(ctx, table, cols, rows)
	}
	if err != nil {
		return 0, fmt.Errorf("land %s: %w", table, err)
	}

	l.logger.Info("landed raw records",
		slog.String("table", table),
		slog.Int64("rows", n),
		slog.Duration("duration", time.Since(start)))
	return n, nil
}

func (l *RawLanding) insert(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	d := l.adp.Dialect()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
	}
	//nolint:gosec // identifiers are quoted by the dialect
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QualifiedName(l.ns, table), strings.Join(quoted, ", "), d.Placeholders(1, len(cols)))

	tx, err := l.adp.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, stmt, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(rows)), nil
}

func (l *RawLanding) ensure(ctx context.Context, table string, columns []string) error {
	d := l.adp.Dialect()
	name := table
	if l.ns != "" && !d.Schemaless {
		name = l.ns + "." + table
	}

	_, err := l.adp.GetTableMetadata(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, adapter.ErrTableNotFound) {
		return fmt.Errorf("inspect %s: %w", table, err)
	}

	ddl, err := l.CreateSQL(table, columns)
	if err != nil {
		return err
	}
	if err := ensureSchema(ctx, l.adp, l.ns); err != nil {
		return err
	}
	l.logger.Info("creating raw table", slog.String("table", name))
	if err := l.adp.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// CreateSQL renders the CREATE TABLE statement for a RAW table.
func (l *RawLanding) CreateSQL(table string, columns []string) (string, error) {
	d := l.adp.Dialect()
	text, err := d.TypeName(core.TypeString)
	if err != nil {
		return "", err
	}
	ts, err := d.TypeName(core.TypeTimestamp)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(columns)+2)
	for _, c := range columns {
		defs = append(defs, d.QuoteIdentifier(c)+" "+text)
	}
	defs = append(defs,
		d.QuoteIdentifier(ColRunID)+" "+text+" NOT NULL",
		d.QuoteIdentifier(ColLoadedAt)+" "+ts+" NOT NULL")
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", d.QualifiedName(l.ns, table), strings.Join(defs, ",\n\t")), nil
}
