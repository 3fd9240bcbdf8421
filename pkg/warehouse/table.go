// Package warehouse maps the RAW, CURATED and PUBLISH layers onto tables of
// a SQL warehouse reached through a pkg/adapter connection.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/shopspring/decimal"
)

// Table is a core.Table stored in the warehouse.
type Table struct {
	adp    adapter.Adapter
	ns     string
	def    *core.TableSchema
	logger *slog.Logger
}

// NewTable binds def to the table of the same name in namespace ns (the
// database schema; ignored by schemaless dialects).
func NewTable(adp adapter.Adapter, ns string, def *core.TableSchema, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Table{adp: adp, ns: ns, def: def, logger: logger}
}

// Schema returns the table schema.
func (t *Table) Schema() *core.TableSchema { return t.def }

// Namespace returns the database schema the table lives in.
func (t *Table) Namespace() string { return t.ns }

// Ref returns the quoted, qualified table name.
func (t *Table) Ref() string {
	return t.adp.Dialect().QualifiedName(t.ns, t.def.Name)
}

func (t *Table) qualifiedName() string {
	if t.ns == "" || t.adp.Dialect().Schemaless {
		return t.def.Name
	}
	return t.ns + "." + t.def.Name
}

func (t *Table) quoteList(cols []string) string {
	d := t.adp.Dialect()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// keyPredicate renders "k1 = p1 AND k2 = p2" with placeholders from start.
func (t *Table) keyPredicate(start int) string {
	d := t.adp.Dialect()
	parts := make([]string, len(t.def.Key))
	for i, k := range t.def.Key {
		parts[i] = d.QuoteIdentifier(k) + " = " + d.FormatPlaceholder(start+i)
	}
	return strings.Join(parts, " AND ")
}

func (t *Table) keyArgs(key core.Key) []any {
	args := make([]any, len(key))
	for i, k := range t.def.Key {
		col, _ := t.def.Column(k)
		args[i] = bindValue(key[i], col.Type)
	}
	return args
}

// Ensure creates the table when it does not exist. An existing table must
// carry every schema column.
func (t *Table) Ensure(ctx context.Context) error {
	meta, err := t.adp.GetTableMetadata(ctx, t.qualifiedName())
	switch {
	case errors.Is(err, adapter.ErrTableNotFound):
		return t.create(ctx)
	case err != nil:
		return fmt.Errorf("inspect %s: %w", t.def.Name, err)
	}

	have := make(map[string]bool, len(meta.Columns))
	for _, c := range meta.Columns {
		have[strings.ToLower(c.Name)] = true
	}
	var missing []string
	for _, c := range t.def.Columns {
		if !have[strings.ToLower(c.Name)] {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s exists without columns %s", t.def.Name, strings.Join(missing, ", "))
	}
	return nil
}

func (t *Table) create(ctx context.Context) error {
	ddl, err := t.CreateSQL()
	if err != nil {
		return err
	}
	t.logger.Info("creating table", slog.String("table", t.qualifiedName()))
	if err := t.adp.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", t.def.Name, err)
	}
	return nil
}

// CreateSQL renders the CREATE TABLE statement for the schema. Key and
// required columns are NOT NULL; the business key is the primary key.
func (t *Table) CreateSQL() (string, error) {
	d := t.adp.Dialect()
	defs := make([]string, 0, len(t.def.Columns)+1)
	for _, c := range t.def.Columns {
		typ, err := d.TypeName(c.Type)
		if err != nil {
			return "", err
		}
		def := d.QuoteIdentifier(c.Name) + " " + typ
		if c.Required || t.def.IsKey(c.Name) {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+t.quoteList(t.def.Key)+")")
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", t.Ref(), strings.Join(defs, ",\n\t")), nil
}

// Lookup returns the row stored under key.
func (t *Table) Lookup(ctx context.Context, key core.Key) (core.Record, bool, error) {
	if len(key) != len(t.def.Key) {
		return nil, false, fmt.Errorf("lookup %s: key has %d fields, want %d", t.def.Name, len(key), len(t.def.Key))
	}
	cols := t.def.ColumnNames()
	//nolint:gosec // identifiers are quoted by the dialect
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", t.quoteList(cols), t.Ref(), t.keyPredicate(1))

	rows, err := t.adp.Query(ctx, query, t.keyArgs(key)...)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", t.def.Name, err)
	}
	recs, err := t.readRows(rows, cols)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", t.def.Name, err)
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// Scan yields every row ordered by business key. Rows are read in full
// before the first yield so no connection is held while the caller works.
func (t *Table) Scan(ctx context.Context) iter.Seq2[core.Record, error] {
	return func(yield func(core.Record, error) bool) {
		cols := t.def.ColumnNames()
		//nolint:gosec // identifiers are quoted by the dialect
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", t.quoteList(cols), t.Ref(), t.quoteList(t.def.Key))

		rows, err := t.adp.Query(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("scan %s: %w", t.def.Name, err))
			return
		}
		recs, err := t.readRows(rows, cols)
		if err != nil {
			yield(nil, fmt.Errorf("scan %s: %w", t.def.Name, err))
			return
		}
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// readRows drains and closes rows, conforming each row to the schema.
func (t *Table) readRows(rows *sql.Rows, cols []string) ([]core.Record, error) {
	defer func() { _ = rows.Close() }()

	conv, _ := t.adp.(adapter.ValueConverter)
	var out []core.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(core.Record, len(cols))
		for i, c := range cols {
			v := vals[i]
			if conv != nil {
				v = conv.ConvertValue(v)
			}
			rec[c] = core.Canonical(v)
		}
		conformed, err := t.def.Conform(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, conformed)
	}
	return out, rows.Err()
}

type plannedRow struct {
	key core.Key
	rec core.Record
}

// UpsertBatch applies recs in one transaction: rows whose key exists get
// their mutable columns updated, the rest are inserted. Any failure rolls
// the transaction back and leaves the table unchanged.
func (t *Table) UpsertBatch(ctx context.Context, recs []core.Record, mutable []string) (core.MergeResult, error) {
	for _, col := range mutable {
		if _, ok := t.def.Column(col); !ok || t.def.IsKey(col) {
			return core.MergeResult{}, &core.MergeConflictError{
				Table: t.def.Name,
				Err:   fmt.Errorf("%q is not a mutable column", col),
			}
		}
	}

	plan := make([]plannedRow, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		conformed, err := t.def.Conform(r)
		if err != nil {
			key, _ := t.def.KeyOf(r)
			return core.MergeResult{}, &core.MergeConflictError{Table: t.def.Name, Key: key, Err: err}
		}
		key, err := t.def.KeyOf(conformed)
		if err != nil {
			return core.MergeResult{}, &core.MergeConflictError{Table: t.def.Name, Err: err}
		}
		if seen[key.String()] {
			return core.MergeResult{}, &core.MergeConflictError{Table: t.def.Name, Key: key, Err: fmt.Errorf("duplicate key in batch")}
		}
		seen[key.String()] = true
		plan = append(plan, plannedRow{key: key, rec: conformed})
	}
	if len(plan) == 0 {
		return core.MergeResult{}, nil
	}

	start := time.Now()
	tx, err := t.adp.BeginTx(ctx)
	if err != nil {
		return core.MergeResult{}, &core.MergeConflictError{Table: t.def.Name, Err: err}
	}

	res, failedKey, err := t.apply(ctx, tx, plan, mutable)
	if err != nil {
		_ = tx.Rollback()
		return core.MergeResult{}, &core.MergeConflictError{Table: t.def.Name, Key: failedKey, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return core.MergeResult{}, &core.MergeConflictError{Table: t.def.Name, Err: fmt.Errorf("commit: %w", err)}
	}

	t.logger.Debug("upserted batch",
		slog.String("table", t.qualifiedName()),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (t *Table) apply(ctx context.Context, tx *sql.Tx, plan []plannedRow, mutable []string) (core.MergeResult, core.Key, error) {
	d := t.adp.Dialect()
	cols := t.def.ColumnNames()

	//nolint:gosec // identifiers are quoted by the dialect
	existsSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", t.Ref(), t.keyPredicate(1))
	//nolint:gosec // identifiers are quoted by the dialect
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Ref(), t.quoteList(cols), d.Placeholders(1, len(cols)))

	var updateSQL string
	if len(mutable) > 0 {
		sets := make([]string, len(mutable))
		for i, c := range mutable {
			sets[i] = d.QuoteIdentifier(c) + " = " + d.FormatPlaceholder(i+1)
		}
		//nolint:gosec // identifiers are quoted by the dialect
		updateSQL = fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.Ref(), strings.Join(sets, ", "), t.keyPredicate(len(mutable)+1))
	}

	var res core.MergeResult
	for _, p := range plan {
		keyArgs := t.keyArgs(p.key)

		var n int64
		if err := tx.QueryRowContext(ctx, existsSQL, keyArgs...).Scan(&n); err != nil {
			return res, p.key, fmt.Errorf("check key: %w", err)
		}

		if n == 0 {
			args := make([]any, len(cols))
			for i, c := range cols {
				col, _ := t.def.Column(c)
				args[i] = bindValue(p.rec[c], col.Type)
			}
			if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
				return res, p.key, fmt.Errorf("insert: %w", err)
			}
			res.Inserted++
			continue
		}

		if updateSQL != "" {
			args := make([]any, 0, len(mutable)+len(keyArgs))
			for _, c := range mutable {
				col, _ := t.def.Column(c)
				args = append(args, bindValue(p.rec[c], col.Type))
			}
			args = append(args, keyArgs...)
			if _, err := tx.ExecContext(ctx, updateSQL, args...); err != nil {
				return res, p.key, fmt.Errorf("update: %w", err)
			}
		}
		res.Updated++
	}
	return res, nil, nil
}

// DeleteKeys removes the rows stored under keys in one transaction.
func (t *Table) DeleteKeys(ctx context.Context, keys []core.Key) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	//nolint:gosec // identifiers are quoted by the dialect
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", t.Ref(), t.keyPredicate(1))

	tx, err := t.adp.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		if len(k) != len(t.def.Key) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("delete from %s: key %s has %d parts, want %d", t.def.Name, k, len(k), len(t.def.Key))
		}
		res, err := tx.ExecContext(ctx, stmt, t.keyArgs(k)...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", t.def.Name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", t.def.Name, err)
		}
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete from %s: commit: %w", t.def.Name, err)
	}

	t.logger.Debug("deleted rows", slog.String("table", t.qualifiedName()), slog.Int64("rows", n))
	return int(n), nil
}

// bindValue converts a canonical value into a driver argument. Decimals
// travel as strings to keep them exact; dates as YYYY-MM-DD.
func bindValue(v any, typ core.FieldType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return x.String()
	case time.Time:
		if typ == core.TypeDate {
			return x.UTC().Format(core.DateLayout)
		}
		return x.UTC()
	}
	return v
}

var _ core.Pruner = (*Table)(nil)
