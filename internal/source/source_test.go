package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCSV_Records(t *testing.T) {
	path := writeFile(t, "\ufeffcustomer_id, first_name ,country\n1,Ada,USA\n2,\"Hopper, Grace\",\n")
	src := NewCSV("customers_raw", path)

	recs, err := core.CollectRaw(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []core.RawRecord{
		{"customer_id": "1", "first_name": "Ada", "country": "USA"},
		{"customer_id": "2", "first_name": "Hopper, Grace", "country": ""},
	}, recs)

	cols, err := src.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "first_name", "country"}, cols)
	assert.Equal(t, "customers_raw", src.Name())
}

func TestCSV_Delimiter(t *testing.T) {
	path := writeFile(t, "a;b\n1;2\n")
	recs, err := core.CollectRaw(context.Background(), NewCSV("x", path, WithComma(';')))
	require.NoError(t, err)
	assert.Equal(t, []core.RawRecord{{"a": "1", "b": "2"}}, recs)
}

func TestCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "empty file", content: "", want: "missing header row"},
		{name: "blank header", content: "a,,c\n", want: "header column 2 is empty"},
		{name: "repeated header", content: "a,a\n", want: `header column "a" repeated`},
		{name: "ragged row", content: "a,b\n1,2\n3\n", want: "expected 2 fields, got 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.CollectRaw(context.Background(), NewCSV("x", writeFile(t, tt.content)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCSV_MissingFile(t *testing.T) {
	_, err := core.CollectRaw(context.Background(), NewCSV("x", filepath.Join(t.TempDir(), "nope.csv")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSlice(t *testing.T) {
	recs := []core.RawRecord{{"id": "1"}, {"id": "2"}}
	got, err := core.CollectRaw(context.Background(), NewSlice("mem", recs))
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = core.CollectRaw(ctx, NewSlice("mem", recs))
	assert.ErrorIs(t, err, context.Canceled)
}
