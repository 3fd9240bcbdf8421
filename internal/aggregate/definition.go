package aggregate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/shopspring/decimal"
)

// Aggregate functions.
const (
	FuncCount = "count"
	FuncSum   = "sum"
	FuncAvg   = "avg"
)

// DefaultAvgScale is the number of decimal places averages are rounded to.
const DefaultAvgScale int32 = 2

// Metric computes one numeric column over the rows of a group.
type Metric struct {
	Name string `yaml:"name"`
	Func string `yaml:"func"`
	// Field is the column aggregated. count without a field counts rows.
	Field string `yaml:"field,omitempty"`
	// Scale rounds avg results; defaults to DefaultAvgScale.
	Scale *int32 `yaml:"scale,omitempty"`
}

// Join attaches related rows to each primary row (left outer join).
type Join struct {
	Table    string   `yaml:"table"`
	LeftKey  []string `yaml:"left_key"`
	RightKey []string `yaml:"right_key"`
}

// BucketRule assigns Label when the metric is at least Min.
type BucketRule struct {
	Label string `yaml:"label"`
	Min   string `yaml:"min"`
}

// Buckets derives a label column from a metric. Rules are checked in
// order; the first satisfied rule wins, otherwise Default applies.
type Buckets struct {
	Target  string       `yaml:"target"`
	Metric  string       `yaml:"metric"`
	Rules   []BucketRule `yaml:"rules"`
	Default string       `yaml:"default"`
}

// Definition declares one publish aggregate.
type Definition struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Join   *Join  `yaml:"join,omitempty"`
	// GroupBy fields of the source. With a join it defaults to the left key.
	GroupBy []string `yaml:"group_by,omitempty"`
	// Carry copies source fields onto the result, taken from the first
	// source row of each group.
	Carry   []string  `yaml:"carry,omitempty"`
	Metrics []Metric  `yaml:"metrics"`
	Buckets []Buckets `yaml:"buckets,omitempty"`
	Target  string    `yaml:"target"`
}

// Groups returns the effective group-by fields.
func (s *Definition) Groups() []string {
	if len(s.GroupBy) == 0 && s.Join != nil {
		return s.Join.LeftKey
	}
	return s.GroupBy
}

// Validate checks the definition for consistency, reporting every issue.
func (s *Definition) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("aggregate %s: "+format, append([]any{s.Name}, args...)...))
	}

	if s.Name == "" {
		add("name is required")
	}
	if s.Source == "" {
		add("source table is required")
	}
	if s.Target == "" {
		add("target table is required")
	}
	if len(s.Groups()) == 0 {
		add("group_by is required without a join")
	}
	if j := s.Join; j != nil {
		if j.Table == "" {
			add("join table is required")
		}
		if len(j.LeftKey) == 0 || len(j.LeftKey) != len(j.RightKey) {
			add("join keys must be non-empty and of equal length")
		}
	}
	if len(s.Metrics) == 0 {
		add("at least one metric is required")
	}

	metrics := make(map[string]bool, len(s.Metrics))
	for _, m := range s.Metrics {
		if m.Name == "" {
			add("metric name is required")
			continue
		}
		if metrics[m.Name] {
			add("metric %q defined twice", m.Name)
		}
		metrics[m.Name] = true
		switch m.Func {
		case FuncCount:
		case FuncSum, FuncAvg:
			if m.Field == "" {
				add("metric %q: %s requires a field", m.Name, m.Func)
			}
		default:
			add("metric %q: unknown function %q", m.Name, m.Func)
		}
	}

	for _, b := range s.Buckets {
		if b.Target == "" {
			add("bucket target is required")
		}
		if !metrics[b.Metric] {
			add("bucket %q: unknown metric %q", b.Target, b.Metric)
		}
		for _, r := range b.Rules {
			if _, err := decimal.NewFromString(r.Min); err != nil {
				add("bucket %q: rule %q has invalid min %q", b.Target, r.Label, r.Min)
			}
		}
	}
	return errors.Join(errs...)
}

// OutputColumns lists the fields every result row carries.
func (s *Definition) OutputColumns() []string {
	cols := append([]string{}, s.Groups()...)
	for _, c := range s.Carry {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	for _, m := range s.Metrics {
		cols = append(cols, m.Name)
	}
	for _, b := range s.Buckets {
		cols = append(cols, b.Target)
	}
	return cols
}

// OutputSchema derives a publish table schema from the definition, typing group
// and carry columns from the source schema.
func (s *Definition) OutputSchema(source *core.TableSchema) (*core.TableSchema, error) {
	out := &core.TableSchema{Name: s.Target, Key: s.Groups()}
	for _, name := range append(append([]string{}, s.Groups()...), s.Carry...) {
		if _, dup := out.Column(name); dup {
			continue
		}
		col, ok := source.Column(name)
		if !ok {
			return nil, fmt.Errorf("aggregate %s: source %s has no column %q", s.Name, source.Name, name)
		}
		out.Columns = append(out.Columns, core.Column{Name: name, Type: col.Type})
	}
	for _, m := range s.Metrics {
		typ := core.TypeDecimal
		if m.Func == FuncCount {
			typ = core.TypeInteger
		}
		out.Columns = append(out.Columns, core.Column{Name: m.Name, Type: typ, Required: true})
	}
	for _, b := range s.Buckets {
		out.Columns = append(out.Columns, core.Column{Name: b.Target, Type: core.TypeString, Required: true})
	}
	return out, out.Validate()
}
