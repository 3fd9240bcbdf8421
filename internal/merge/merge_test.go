package merge

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/memtable"
	"github.com/leapstack-labs/leapetl/internal/testutil"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customers() *core.TableSchema {
	return &core.TableSchema{
		Name: "customers",
		Key:  []string{"customer_id"},
		Columns: []core.Column{
			{Name: "customer_id", Type: core.TypeInteger},
			{Name: "full_name", Type: core.TypeString},
			{Name: "country_code", Type: core.TypeString},
			{Name: "is_active", Type: core.TypeBoolean},
			{Name: "created_by", Type: core.TypeString},
		},
	}
}

func newTable(t *testing.T) *memtable.Table {
	t.Helper()
	tbl, err := memtable.New(customers())
	require.NoError(t, err)
	return tbl
}

var updateRules = Rules{Policy: PolicyUpdate, Mutable: []string{"full_name", "country_code", "is_active"}}

func TestMerge_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(testutil.NewTestLogger(t))
	tbl := newTable(t)

	rec := core.Record{"customer_id": int64(1), "full_name": "A B", "country_code": "US", "is_active": true}

	res, err := eng.Merge(ctx, tbl, []core.Record{rec}, updateRules)
	require.NoError(t, err)
	assert.Equal(t, core.MergeResult{Inserted: 1, Updated: 0}, res)

	res, err = eng.Merge(ctx, tbl, []core.Record{rec}, updateRules)
	require.NoError(t, err)
	assert.Equal(t, core.MergeResult{Inserted: 0, Updated: 1}, res)
	assert.Equal(t, 1, tbl.Len())
}

func TestMerge_Idempotent(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	tbl := newTable(t)

	batch := []core.Record{
		{"customer_id": int64(1), "full_name": "A B", "country_code": "US"},
		{"customer_id": int64(2), "full_name": "C D", "country_code": "GB"},
	}
	_, err := eng.Merge(ctx, tbl, batch, updateRules)
	require.NoError(t, err)
	first, err := core.Collect(tbl.Scan(ctx))
	require.NoError(t, err)

	_, err = eng.Merge(ctx, tbl, batch, updateRules)
	require.NoError(t, err)
	second, err := core.Collect(tbl.Scan(ctx))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMerge_NeverDeletes(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	tbl := newTable(t)

	_, err := eng.Merge(ctx, tbl, []core.Record{
		{"customer_id": int64(1), "full_name": "A"},
		{"customer_id": int64(2), "full_name": "B"},
	}, updateRules)
	require.NoError(t, err)

	_, err = eng.Merge(ctx, tbl, []core.Record{{"customer_id": int64(2), "full_name": "B2"}}, updateRules)
	require.NoError(t, err)

	got, ok, err := tbl.Lookup(ctx, core.Key{int64(1)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", got["full_name"])
}

func TestMerge_UpdateTouchesOnlyMutable(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	tbl := newTable(t)

	_, err := eng.Merge(ctx, tbl, []core.Record{{"customer_id": int64(1), "full_name": "A", "created_by": "loader-1"}}, updateRules)
	require.NoError(t, err)
	_, err = eng.Merge(ctx, tbl, []core.Record{{"customer_id": int64(1), "full_name": "A2", "created_by": "loader-2"}}, updateRules)
	require.NoError(t, err)

	got, _, err := tbl.Lookup(ctx, core.Key{int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "A2", got["full_name"])
	assert.Equal(t, "loader-1", got["created_by"])
}

func TestMerge_ReplacePolicy(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	tbl := newTable(t)
	rules := Rules{Policy: PolicyReplace}

	_, err := eng.Merge(ctx, tbl, []core.Record{{"customer_id": int64(1), "full_name": "A", "created_by": "x"}}, rules)
	require.NoError(t, err)
	res, err := eng.Merge(ctx, tbl, []core.Record{{"customer_id": int64(1), "full_name": "B"}}, rules)
	require.NoError(t, err)
	assert.Equal(t, core.MergeResult{Updated: 1}, res)

	got, _, err := tbl.Lookup(ctx, core.Key{int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "B", got["full_name"])
	assert.Nil(t, got["created_by"])
}

func TestMerge_Conflicts(t *testing.T) {
	tests := []struct {
		name  string
		recs  []core.Record
		rules Rules
	}{
		{
			name:  "duplicate key in batch",
			recs:  []core.Record{{"customer_id": int64(9)}, {"customer_id": int64(9)}},
			rules: updateRules,
		},
		{
			name:  "missing key",
			recs:  []core.Record{{"full_name": "nobody"}},
			rules: updateRules,
		},
		{
			name:  "type mismatch",
			recs:  []core.Record{{"customer_id": int64(9), "is_active": "sometimes"}},
			rules: updateRules,
		},
		{
			name:  "unknown column",
			recs:  []core.Record{{"customer_id": int64(9), "shoe_size": int64(44)}},
			rules: updateRules,
		},
		{
			name:  "mutable key column",
			recs:  []core.Record{{"customer_id": int64(9)}},
			rules: Rules{Mutable: []string{"customer_id"}},
		},
		{
			name:  "unknown mutable column",
			recs:  []core.Record{{"customer_id": int64(9)}},
			rules: Rules{Mutable: []string{"nickname"}},
		},
		{
			name:  "unknown policy",
			recs:  []core.Record{{"customer_id": int64(9)}},
			rules: Rules{Policy: "truncate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tbl := newTable(t)
			_, err := NewEngine(nil).Merge(ctx, tbl, tt.recs, tt.rules)

			var mce *core.MergeConflictError
			require.True(t, errors.As(err, &mce), "got %v", err)
			assert.Equal(t, "customers", mce.Table)
			assert.Equal(t, 0, tbl.Len())
		})
	}
}

// failingTable rejects every upsert the way a storage engine would.
type failingTable struct {
	schema *core.TableSchema
	calls  int
}

func (f *failingTable) Schema() *core.TableSchema { return f.schema }
func (f *failingTable) Lookup(context.Context, core.Key) (core.Record, bool, error) {
	return nil, false, nil
}
func (f *failingTable) UpsertBatch(context.Context, []core.Record, []string) (core.MergeResult, error) {
	f.calls++
	return core.MergeResult{}, errors.New("constraint violation")
}
func (f *failingTable) Scan(context.Context) iter.Seq2[core.Record, error] {
	return func(func(core.Record, error) bool) {}
}

func TestMerge_StorageErrorBecomesConflict(t *testing.T) {
	tbl := &failingTable{schema: customers()}
	_, err := NewEngine(nil).Merge(context.Background(), tbl, []core.Record{{"customer_id": int64(1)}}, updateRules)

	var mce *core.MergeConflictError
	require.True(t, errors.As(err, &mce))
	assert.Contains(t, err.Error(), "constraint violation")
	assert.Equal(t, 1, tbl.calls)
}

func TestMerge_EmptyBatch(t *testing.T) {
	tbl := &failingTable{schema: customers()}
	res, err := NewEngine(nil).Merge(context.Background(), tbl, nil, updateRules)
	require.NoError(t, err)
	assert.Equal(t, core.MergeResult{}, res)
	assert.Equal(t, 0, tbl.calls)
}
