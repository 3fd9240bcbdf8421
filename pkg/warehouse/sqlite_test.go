package warehouse_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapetl/internal/testutil"
	"github.com/leapstack-labs/leapetl/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/leapstack-labs/leapetl/pkg/warehouse"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sqlite.Adapter {
	t.Helper()
	adp := sqlite.New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(context.Background(), core.AdapterConfig{Path: filepath.Join(t.TempDir(), "warehouse.db")}))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func ordersSchema() *core.TableSchema {
	return &core.TableSchema{
		Name: "orders",
		Key:  []string{"order_id"},
		Columns: []core.Column{
			{Name: "order_id", Type: core.TypeInteger},
			{Name: "customer_id", Type: core.TypeInteger, Required: true},
			{Name: "amount", Type: core.TypeDecimal},
			{Name: "total", Type: core.TypeDecimal},
			{Name: "order_date", Type: core.TypeDate},
			{Name: "status", Type: core.TypeString},
			{Name: "paid", Type: core.TypeBoolean},
		},
	}
}

func TestCatalog_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	adp := openSQLite(t)
	cat := warehouse.NewCatalog(adp, nil)

	orders, err := cat.Register("curated", ordersSchema())
	require.NoError(t, err)
	require.NoError(t, cat.EnsureAll(ctx))
	require.NoError(t, cat.EnsureAll(ctx), "ensure is idempotent")

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	mutable := []string{"status", "paid"}

	res, err := orders.UpsertBatch(ctx, []core.Record{
		{"order_id": int64(2), "customer_id": int64(1), "amount": "100.55", "total": "110.61", "order_date": day, "status": "Pending", "paid": false},
		{"order_id": int64(1), "customer_id": int64(1), "amount": "5", "total": "5.50", "order_date": day, "status": "Shipped", "paid": true},
	}, mutable)
	require.NoError(t, err)
	assert.Equal(t, core.MergeResult{Inserted: 2}, res)

	res, err = orders.UpsertBatch(ctx, []core.Record{
		{"order_id": int64(2), "customer_id": int64(9), "amount": "1", "status": "Shipped", "paid": true},
	}, mutable)
	require.NoError(t, err)
	assert.Equal(t, core.MergeResult{Updated: 1}, res)

	recs, err := core.Collect(orders.Scan(ctx))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0]["order_id"], "scan is ordered by key")

	second := recs[1]
	assert.Equal(t, int64(1), second["customer_id"], "immutable column kept")
	assert.True(t, decimal.RequireFromString("100.55").Equal(second["amount"].(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("110.61").Equal(second["total"].(decimal.Decimal)))
	assert.True(t, day.Equal(second["order_date"].(time.Time)))
	assert.Equal(t, "Shipped", second["status"])
	assert.Equal(t, true, second["paid"])

	got, ok, err := orders.Lookup(ctx, core.Key{int64(1)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Shipped", got["status"])

	resolved, err := cat.Table("orders")
	require.NoError(t, err)
	assert.Same(t, orders, resolved)
	_, err = cat.Table("nope")
	assert.Error(t, err)
}

func TestCatalog_RegisterTwice(t *testing.T) {
	cat := warehouse.NewCatalog(openSQLite(t), nil)
	_, err := cat.Register("curated", ordersSchema())
	require.NoError(t, err)
	_, err = cat.Register("publish", ordersSchema())
	assert.Error(t, err)
}

func TestTable_EnsureDetectsMissingColumns(t *testing.T) {
	ctx := context.Background()
	adp := openSQLite(t)
	require.NoError(t, adp.Exec(ctx, `CREATE TABLE "orders" ("order_id" INTEGER PRIMARY KEY)`))

	err := warehouse.NewTable(adp, "", ordersSchema(), nil).Ensure(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_id")
}

func TestRawLanding_SQLite(t *testing.T) {
	ctx := context.Background()
	adp := openSQLite(t)
	landing := warehouse.NewRawLanding(adp, "raw", nil)
	loadedAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	cols := []string{"order_id", "amount", "order_date"}
	n, err := landing.Land(ctx, "orders_raw", cols, []core.RawRecord{
		{"order_id": "1", "amount": "100.55", "order_date": "2024-01-15"},
		{"order_id": int64(2), "amount": nil, "ignored": "x"},
	}, "run-1", loadedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = landing.Land(ctx, "orders_raw", cols, []core.RawRecord{{"order_id": "3"}}, "run-2", loadedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := adp.Query(ctx, `SELECT "order_id", "amount", "_run_id" FROM "orders_raw" ORDER BY "order_id"`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	type landed struct {
		id, runID string
		amount    *string
	}
	var got []landed
	for rows.Next() {
		var l landed
		require.NoError(t, rows.Scan(&l.id, &l.amount, &l.runID))
		got = append(got, l)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[1].id)
	assert.Nil(t, got[1].amount)
	assert.Equal(t, "run-2", got[2].runID)
}
