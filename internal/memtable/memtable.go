// Package memtable provides an in-memory core.Table ordered by business key.
//
// It backs dry runs and tests, and serves as the reference behaviour for the
// SQL-backed tables in pkg/warehouse.
package memtable

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/leapstack-labs/leapetl/pkg/core"
)

type row struct {
	key core.Key
	rec core.Record
}

// Table is an in-memory target table. It is safe for concurrent use.
type Table struct {
	schema *core.TableSchema

	mu   sync.RWMutex
	rows map[string]row
}

// New creates an empty table for schema.
func New(schema *core.TableSchema) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Table{schema: schema, rows: make(map[string]row)}, nil
}

// Schema returns the table schema.
func (t *Table) Schema() *core.TableSchema { return t.schema }

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Lookup returns a copy of the row stored under key.
func (t *Table) Lookup(_ context.Context, key core.Key) (core.Record, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[key.String()]
	if !ok {
		return nil, false, nil
	}
	return r.rec.Clone(), true, nil
}

type pending struct {
	id     string
	key    core.Key
	rec    core.Record
	update bool
}

// UpsertBatch applies recs atomically. Every record is conformed and checked
// before the first row changes, so a failure leaves the table untouched.
func (t *Table) UpsertBatch(_ context.Context, recs []core.Record, mutable []string) (core.MergeResult, error) {
	for _, col := range mutable {
		if _, ok := t.schema.Column(col); !ok || t.schema.IsKey(col) {
			return core.MergeResult{}, &core.MergeConflictError{
				Table: t.schema.Name,
				Err:   fmt.Errorf("%q is not a mutable column", col),
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	plan := make([]pending, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		conformed, err := t.schema.Conform(r)
		if err != nil {
			key, _ := t.schema.KeyOf(r)
			return core.MergeResult{}, &core.MergeConflictError{Table: t.schema.Name, Key: key, Err: err}
		}
		key, err := t.schema.KeyOf(conformed)
		if err != nil {
			return core.MergeResult{}, &core.MergeConflictError{Table: t.schema.Name, Err: err}
		}
		id := key.String()
		if seen[id] {
			return core.MergeResult{}, &core.MergeConflictError{
				Table: t.schema.Name,
				Key:   key,
				Err:   fmt.Errorf("duplicate key in batch"),
			}
		}
		seen[id] = true
		_, exists := t.rows[id]
		plan = append(plan, pending{id: id, key: key, rec: conformed, update: exists})
	}

	var res core.MergeResult
	for _, p := range plan {
		if !p.update {
			t.rows[p.id] = row{key: p.key, rec: p.rec}
			res.Inserted++
			continue
		}
		existing := t.rows[p.id].rec.Clone()
		for _, col := range mutable {
			existing[col] = p.rec[col]
		}
		t.rows[p.id] = row{key: p.key, rec: existing}
		res.Updated++
	}
	return res, nil
}

// DeleteKeys removes the rows stored under keys.
func (t *Table) DeleteKeys(_ context.Context, keys []core.Key) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, k := range keys {
		id := k.String()
		if _, ok := t.rows[id]; ok {
			delete(t.rows, id)
			n++
		}
	}
	return n, nil
}

// Scan yields copies of all rows ordered by business key. The snapshot is
// taken when iteration starts.
func (t *Table) Scan(ctx context.Context) iter.Seq2[core.Record, error] {
	return func(yield func(core.Record, error) bool) {
		t.mu.RLock()
		rows := make([]row, 0, len(t.rows))
		for _, r := range t.rows {
			rows = append(rows, r)
		}
		t.mu.RUnlock()

		slices.SortFunc(rows, func(a, b row) int {
			c, err := a.key.Compare(b.key)
			if err != nil {
				return compareStrings(a.key.String(), b.key.String())
			}
			return c
		})

		for _, r := range rows {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(r.rec.Clone(), nil) {
				return
			}
		}
	}
}

var _ core.Pruner = (*Table)(nil)

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Catalog is a set of in-memory tables resolvable by name.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// Create adds a table for schema, replacing nothing: creating an existing
// name returns the existing table.
func (c *Catalog) Create(schema *core.TableSchema) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[schema.Name]; ok {
		return t, nil
	}
	t, err := New(schema)
	if err != nil {
		return nil, err
	}
	c.tables[schema.Name] = t
	return t, nil
}

// Table implements core.TableResolver.
func (c *Catalog) Table(name string) (core.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s not found", name)
	}
	return t, nil
}
