package starlark

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/shopspring/decimal"
	"go.starlark.net/starlark"
)

// ToStarlark converts a canonical record value to a Starlark value.
// Decimals become floats and dates become YYYY-MM-DD strings.
func ToStarlark(v any) (starlark.Value, error) {
	switch val := core.Canonical(v).(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case decimal.Decimal:
		return starlark.Float(val.InexactFloat64()), nil
	case bool:
		return starlark.Bool(val), nil
	case time.Time:
		return starlark.String(core.FormatValue(val)), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark result back to a canonical value.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val.String())
		}
		return i64, nil
	case starlark.Float:
		return decimal.NewFromFloat(float64(val)), nil
	case starlark.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported result type %s", v.Type())
	}
}
