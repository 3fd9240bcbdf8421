package warehouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/leapetl/internal/testutil"
	"github.com/leapstack-labs/leapetl/pkg/adapters/duckdb"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDuckDB(t *testing.T) *duckdb.Adapter {
	t.Helper()
	adp := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(context.Background(), core.AdapterConfig{Path: ":memory:"}))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestRawLanding_DuckDBCreatesNamespace(t *testing.T) {
	ctx := context.Background()
	adp := openDuckDB(t)
	landing := warehouse.NewRawLanding(adp, "raw", nil)
	loadedAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	cols := []string{"order_id", "order_date"}
	for _, run := range []string{"run-1", "run-2"} {
		n, err := landing.Land(ctx, "orders_raw", cols, []core.RawRecord{
			{"order_id": "1", "order_date": "2024-01-15"},
		}, run, loadedAt)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}

	meta, err := adp.GetTableMetadata(ctx, "raw.orders_raw")
	require.NoError(t, err)
	assert.Len(t, meta.Columns, 4)

	rows, err := adp.Query(ctx, `SELECT COUNT(*) FROM "raw"."orders_raw"`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	require.True(t, rows.Next())
	var landed int
	require.NoError(t, rows.Scan(&landed))
	assert.Equal(t, 2, landed)
}

func TestTable_DuckDBDeleteKeys(t *testing.T) {
	ctx := context.Background()
	cat := warehouse.NewCatalog(openDuckDB(t), nil)

	orders, err := cat.Register("curated", ordersSchema())
	require.NoError(t, err)
	require.NoError(t, cat.EnsureAll(ctx))

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err = orders.UpsertBatch(ctx, []core.Record{
		{"order_id": int64(1), "customer_id": int64(1), "order_date": day},
		{"order_id": int64(2), "customer_id": int64(1), "order_date": day},
	}, nil)
	require.NoError(t, err)

	n, err := orders.DeleteKeys(ctx, []core.Key{{int64(2)}, {int64(3)}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := core.Collect(orders.Scan(ctx))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["order_id"])
}
