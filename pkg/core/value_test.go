package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		value   any
		typ     FieldType
		want    any
		wantErr bool
	}{
		{name: "integer from string", value: " 42 ", typ: TypeInteger, want: int64(42)},
		{name: "integer from int", value: 7, typ: TypeInteger, want: int64(7)},
		{name: "integer from integral decimal", value: decimal.RequireFromString("3.00"), typ: TypeInteger, want: int64(3)},
		{name: "integer rejects fraction", value: "3.5", typ: TypeInteger, wantErr: true},
		{name: "integer rejects text", value: "abc", typ: TypeInteger, wantErr: true},
		{name: "decimal from string", value: "100.50", typ: TypeDecimal, want: decimal.RequireFromString("100.5")},
		{name: "decimal from float", value: 12.25, typ: TypeDecimal, want: decimal.RequireFromString("12.25")},
		{name: "decimal rejects text", value: "ten", typ: TypeDecimal, wantErr: true},
		{name: "date from string", value: "2024-02-01", typ: TypeDate, want: day},
		{name: "date drops time of day", value: "2024-02-01T13:45:00Z", typ: TypeDate, want: day},
		{name: "date rejects garbage", value: "02/01/2024", typ: TypeDate, wantErr: true},
		{name: "boolean from int", value: int64(1), typ: TypeBoolean, want: true},
		{name: "boolean from string", value: "false", typ: TypeBoolean, want: false},
		{name: "string from int", value: int64(9), typ: TypeString, want: "9"},
		{name: "nil passes through", value: nil, typ: TypeInteger, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.typ)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if d, ok := tt.want.(decimal.Decimal); ok {
				require.IsType(t, decimal.Decimal{}, got)
				assert.True(t, d.Equal(got.(decimal.Decimal)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b any
		want int
	}{
		{name: "nil before value", a: nil, b: int64(1), want: -1},
		{name: "both nil", a: nil, b: nil, want: 0},
		{name: "ints", a: int64(2), b: int64(10), want: -1},
		{name: "int against decimal", a: int64(10), b: decimal.RequireFromString("9.99"), want: 1},
		{name: "dates", a: late, b: early, want: 1},
		{name: "strings", a: "a", b: "b", want: -1},
		{name: "bools", a: false, b: true, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("mismatched types", func(t *testing.T) {
		_, err := Compare("1", int64(1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIncomparable))
	})
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, Key{int64(5)}.String(), Key{5}.String())
	assert.NotEqual(t, Key{int64(5)}.String(), Key{"5"}.String())
	assert.NotEqual(t, Key{"a|b"}.String(), Key{"a", "b"}.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "2024-02-01", FormatValue(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "10.5", FormatValue(decimal.RequireFromString("10.50")))
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "true", FormatValue(true))
}
