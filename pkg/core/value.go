package core

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType is the logical type of a record field or table column.
type FieldType string

// Field types.
const (
	TypeInteger   FieldType = "integer"
	TypeDecimal   FieldType = "decimal"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
	TypeString    FieldType = "string"
	TypeBoolean   FieldType = "boolean"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeInteger, TypeDecimal, TypeDate, TypeTimestamp, TypeString, TypeBoolean:
		return true
	}
	return false
}

// ErrIncomparable is returned when two values have no defined order.
var ErrIncomparable = errors.New("values are not comparable")

// DateLayout is the layout used for date-only values.
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
}

// Canonical maps driver and Go native scalars onto the canonical value set.
// Unknown types are returned unchanged.
func Canonical(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return decimal.NewFromFloat32(x)
	case float64:
		return decimal.NewFromFloat(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		return decimal.NewFromBigInt(x, 0)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

// Compare orders two canonical values. nil sorts before every other value.
// Integers and decimals compare numerically with each other.
func Compare(a, b any) (int, error) {
	a, b = Canonical(a), Canonical(b)
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpInt(x, y), nil
		case decimal.Decimal:
			return decimal.NewFromInt(x).Cmp(y), nil
		}
	case decimal.Decimal:
		switch y := b.(type) {
		case decimal.Decimal:
			return x.Cmp(y), nil
		case int64:
			return x.Cmp(decimal.NewFromInt(y)), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b any) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Coerce converts v into the canonical representation of t.
// nil passes through unchanged.
func Coerce(v any, t FieldType) (any, error) {
	v = Canonical(v)
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInteger:
		return ToInt64(v)
	case TypeDecimal:
		return ToDecimal(v)
	case TypeDate:
		ts, err := ToTime(v)
		if err != nil {
			return nil, err
		}
		return TruncateDate(ts), nil
	case TypeTimestamp:
		return ToTime(v)
	case TypeString:
		return ToString(v)
	case TypeBoolean:
		return ToBool(v)
	}
	return nil, fmt.Errorf("unknown field type %q", t)
}

// ToInt64 converts integral values and integer strings to int64.
func ToInt64(v any) (int64, error) {
	switch x := Canonical(v).(type) {
	case int64:
		return x, nil
	case decimal.Decimal:
		if !x.Equal(x.Truncate(0)) {
			return 0, fmt.Errorf("%s is not an integer", x)
		}
		return x.IntPart(), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", x)
		}
		return n, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

// ToDecimal converts numbers and numeric strings to decimal.Decimal.
// Driver decimal types that expose a String method are parsed through it.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := Canonical(v).(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case string:
		s := strings.TrimSpace(x)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", x)
		}
		return d, nil
	case fmt.Stringer:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", x.String())
		}
		return d, nil
	}
	if f, ok := v.(interface{ Float64() float64 }); ok {
		val := f.Float64()
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, fmt.Errorf("invalid decimal %v", val)
		}
		return decimal.NewFromFloat(val), nil
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}

// ToTime converts time values and date or timestamp strings to a UTC time.
func ToTime(v any) (time.Time, error) {
	switch x := Canonical(v).(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date %q", x)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to date", v)
}

// TruncateDate drops the time-of-day part, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ToString renders a canonical value as a string.
func ToString(v any) (string, error) {
	switch x := Canonical(v).(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case decimal.Decimal:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

// ToBool converts booleans, 0/1 integers and "true"/"false" strings.
func ToBool(v any) (bool, error) {
	switch x := Canonical(v).(type) {
	case bool:
		return x, nil
	case int64:
		switch x {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("cannot convert %v to boolean", v)
}

// FormatValue renders a canonical value for display and raw landing.
// Dates without a time component print as YYYY-MM-DD.
func FormatValue(v any) string {
	switch x := Canonical(v).(type) {
	case nil:
		return ""
	case time.Time:
		if x.Equal(TruncateDate(x)) {
			return x.Format(DateLayout)
		}
		return x.Format(time.RFC3339)
	case decimal.Decimal:
		return x.String()
	}
	s, err := ToString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
