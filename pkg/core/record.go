package core

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one row of a raw batch as it arrived from a source.
// Values are untyped scalars, usually strings.
type RawRecord map[string]any

// Record is a canonical entity or aggregate row.
// Values are always one of: nil, int64, decimal.Decimal, time.Time, string, bool.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the record's field names in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Key is the ordered tuple of business key values identifying a record.
type Key []any

// String returns the canonical encoding of the key.
// Two keys are equal exactly when their encodings are equal.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = encodeKeyValue(Canonical(v))
	}
	return strings.Join(parts, "|")
}

// Compare orders two keys element-wise.
func (k Key) Compare(other Key) (int, error) {
	for i := 0; i < len(k) && i < len(other); i++ {
		c, err := Compare(k[i], other[i])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}
	switch {
	case len(k) < len(other):
		return -1, nil
	case len(k) > len(other):
		return 1, nil
	}
	return 0, nil
}

func encodeKeyValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "n"
	case int64:
		return "i:" + strconv.FormatInt(x, 10)
	case decimal.Decimal:
		return "d:" + x.String()
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case string:
		return "s:" + strconv.Quote(x)
	case bool:
		return "b:" + strconv.FormatBool(x)
	default:
		return fmt.Sprintf("?:%v", x)
	}
}

// ErrorPolicy decides what a batch stage does with a record it cannot process.
type ErrorPolicy string

// Error policy constants.
const (
	// ErrorPolicySkip drops the offending record and continues.
	ErrorPolicySkip ErrorPolicy = "skip"
	// ErrorPolicyAbort stops the batch at the first offending record.
	ErrorPolicyAbort ErrorPolicy = "abort"
)

// Valid reports whether p is a known policy.
func (p ErrorPolicy) Valid() bool {
	return p == ErrorPolicySkip || p == ErrorPolicyAbort
}

// MergeResult counts the rows touched by one merge. Deleted is only set
// when a publish table drops groups its recomputation no longer yields.
type MergeResult struct {
	Updated  int
	Inserted int
	Deleted  int
}

// Add accumulates another result into r.
func (r *MergeResult) Add(other MergeResult) {
	r.Updated += other.Updated
	r.Inserted += other.Inserted
	r.Deleted += other.Deleted
}
