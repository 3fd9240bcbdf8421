package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_ConnectAndMetadata(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{Path: filepath.Join(t.TempDir(), "warehouse.db")}))
	defer func() { _ = adp.Close() }()

	require.NoError(t, adp.Exec(ctx, `CREATE TABLE "customers" ("customer_id" INTEGER NOT NULL PRIMARY KEY, "full_name" TEXT)`))
	require.NoError(t, adp.Exec(ctx, `INSERT INTO "customers" VALUES (?, ?)`, int64(1), "A B"))

	meta, err := adp.GetTableMetadata(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, meta.Columns, 2)
	assert.Equal(t, "customer_id", meta.Columns[0].Name)
	assert.Equal(t, 1, meta.Columns[0].Position)
	assert.False(t, meta.Columns[0].Nullable)
	assert.True(t, meta.Columns[1].Nullable)
	assert.Equal(t, int64(1), meta.RowCount)

	_, err = adp.GetTableMetadata(ctx, "missing")
	assert.True(t, errors.Is(err, adapter.ErrTableNotFound))
}

func TestAdapter_Transaction(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.AdapterConfig{}))
	defer func() { _ = adp.Close() }()

	require.NoError(t, adp.Exec(ctx, `CREATE TABLE t (v INTEGER)`))

	tx, err := adp.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO t VALUES (1)`)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	rows, err := adp.Query(ctx, `SELECT COUNT(*) FROM t`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 0, n)
}

func TestDialect(t *testing.T) {
	assert.Equal(t, `"orders"`, Dialect.QualifiedName("curated", "orders"))
	typ, err := Dialect.TypeName(core.TypeDecimal)
	require.NoError(t, err)
	assert.Equal(t, "TEXT", typ)
	assert.True(t, adapter.IsRegistered("sqlite"))
}
