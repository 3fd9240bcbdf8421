package normalize

import (
	"fmt"
	"strings"
	"time"

	starctx "github.com/leapstack-labs/leapetl/internal/starlark"
	"github.com/leapstack-labs/leapetl/pkg/core"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func init() {
	RegisterTransform("copy", newCopy)
	RegisterTransform("string", newString)
	RegisterTransform("integer", newInteger)
	RegisterTransform("decimal", newDecimal)
	RegisterTransform("date", newDate)
	RegisterTransform("timestamp", newTimestamp)
	RegisterTransform("boolean", newBoolean)
	RegisterTransform("concat", newConcat)
	RegisterTransform("lookup", newLookup)
	RegisterTransform("tax", newTax)
	RegisterTransform("total", newTotal)
	RegisterTransform("days_since", newDaysSince)
	RegisterTransform("constant", newConstant)
	RegisterTransform("expr", newExpr)
}

// DefaultTaxRate is the rate used by tax and total when none is declared.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// blank reports whether a raw value counts as missing.
func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func malformed(field string, v any, want string, err error) error {
	return &core.MalformedFieldError{Field: field, Value: v, Want: want, Err: err}
}

func newCopy(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	if err := decodeParams(m.Params, &struct{}{}); err != nil {
		return nil, err
	}
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		if s, ok := in[0].(string); ok {
			return strings.TrimSpace(s), nil
		}
		return core.Canonical(in[0]), nil
	}, nil
}

type stringParams struct {
	Case string `mapstructure:"case"`
}

func newString(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	var p stringParams
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	var newCaser func() cases.Caser
	switch p.Case {
	case "":
	case "upper":
		newCaser = func() cases.Caser { return cases.Upper(language.Und) }
	case "lower":
		newCaser = func() cases.Caser { return cases.Lower(language.Und) }
	case "title":
		newCaser = func() cases.Caser { return cases.Title(language.Und) }
	default:
		return nil, fmt.Errorf("unknown case %q (want upper, lower or title)", p.Case)
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		s, err := core.ToString(in[0])
		if err != nil {
			return nil, malformed(field, in[0], "string", err)
		}
		s = strings.TrimSpace(s)
		if newCaser != nil {
			s = newCaser().String(s)
		}
		return s, nil
	}, nil
}

func newInteger(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	if err := decodeParams(m.Params, &struct{}{}); err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		n, err := core.ToInt64(in[0])
		if err != nil {
			return nil, malformed(field, in[0], "integer", err)
		}
		return n, nil
	}, nil
}

type decimalParams struct {
	Scale *int32 `mapstructure:"scale"`
}

func newDecimal(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	var p decimalParams
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		d, err := core.ToDecimal(in[0])
		if err != nil {
			return nil, malformed(field, in[0], "decimal", err)
		}
		if p.Scale != nil {
			d = d.Round(*p.Scale)
		}
		return d, nil
	}, nil
}

type dateParams struct {
	Layout string `mapstructure:"layout"`
}

func newDate(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	p := dateParams{Layout: core.DateLayout}
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		switch v := core.Canonical(in[0]).(type) {
		case time.Time:
			return core.TruncateDate(v), nil
		case string:
			t, err := time.Parse(p.Layout, strings.TrimSpace(v))
			if err != nil {
				return nil, malformed(field, in[0], "date "+p.Layout, err)
			}
			return core.TruncateDate(t), nil
		}
		return nil, malformed(field, in[0], "date", fmt.Errorf("unsupported type %T", in[0]))
	}, nil
}

func newTimestamp(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	if err := decodeParams(m.Params, &struct{}{}); err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		t, err := core.ToTime(in[0])
		if err != nil {
			return nil, malformed(field, in[0], "timestamp", err)
		}
		return t, nil
	}, nil
}

type booleanParams struct {
	TrueValues      []string `mapstructure:"true_values"`
	FalseValues     []string `mapstructure:"false_values"`
	CaseInsensitive bool     `mapstructure:"case_insensitive"`
}

// newBoolean maps a status-like value onto a bool. Inputs in true_values
// are true. With false_values declared the match is strict and anything in
// neither list is malformed; otherwise everything else is false.
func newBoolean(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	p := booleanParams{TrueValues: []string{"true", "1", "yes"}}
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	trueSet := newFoldSet(p.TrueValues, p.CaseInsensitive)
	falseSet := newFoldSet(p.FalseValues, p.CaseInsensitive)
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		if b, ok := in[0].(bool); ok {
			return b, nil
		}
		s := strings.TrimSpace(core.FormatValue(in[0]))
		switch {
		case trueSet.has(s):
			return true, nil
		case len(p.FalseValues) == 0, falseSet.has(s):
			return false, nil
		}
		return nil, malformed(field, in[0], "boolean", nil)
	}, nil
}

type concatParams struct {
	Separator *string `mapstructure:"separator"`
}

// newConcat joins the non-missing sources. All sources missing yields nil.
func newConcat(m Mapping, _ *Env) (Func, error) {
	if len(m.Inputs()) == 0 {
		return nil, fmt.Errorf("expects at least one source field")
	}
	var p concatParams
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	sep := " "
	if p.Separator != nil {
		sep = *p.Separator
	}
	inputs := m.Inputs()
	return func(in []any) (any, error) {
		parts := make([]string, 0, len(in))
		for i, v := range in {
			if blank(v) {
				continue
			}
			s, err := core.ToString(v)
			if err != nil {
				return nil, malformed(inputs[i], v, "string", err)
			}
			parts = append(parts, strings.TrimSpace(s))
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return strings.Join(parts, sep), nil
	}, nil
}

type lookupParams struct {
	Values          map[string]any `mapstructure:"values"`
	Default         any            `mapstructure:"default"`
	CaseInsensitive bool           `mapstructure:"case_insensitive"`
}

// newLookup maps a code through a table. A declared default (including an
// explicit null) covers unmapped inputs; without one an unmapped input is an
// UnmappedLookupError. Missing inputs take the default when one is declared.
func newLookup(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	var p lookupParams
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	if len(p.Values) == 0 {
		return nil, fmt.Errorf("lookup requires a non-empty values table")
	}
	_, hasDefault := m.Params["default"]
	def := core.Canonical(p.Default)

	table := make(map[string]any, len(p.Values))
	for k, v := range p.Values {
		key := foldKey(k, p.CaseInsensitive)
		if _, dup := table[key]; dup {
			return nil, fmt.Errorf("lookup key %q collides after case folding", k)
		}
		table[key] = core.Canonical(v)
	}

	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			if hasDefault {
				return def, nil
			}
			return nil, nil
		}
		key := foldKey(strings.TrimSpace(core.FormatValue(in[0])), p.CaseInsensitive)
		if v, ok := table[key]; ok {
			return v, nil
		}
		if hasDefault {
			return def, nil
		}
		return nil, &core.UnmappedLookupError{Field: field, Value: in[0]}
	}, nil
}

type taxParams struct {
	Rate  any   `mapstructure:"rate"`
	Scale int32 `mapstructure:"scale"`
}

func (p taxParams) rate() (decimal.Decimal, error) {
	if p.Rate == nil {
		return DefaultTaxRate, nil
	}
	r, err := core.ToDecimal(p.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate: %w", err)
	}
	if r.IsNegative() {
		return decimal.Zero, fmt.Errorf("rate must not be negative")
	}
	return r, nil
}

// newTax computes round(amount * rate, scale).
func newTax(m Mapping, _ *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	p := taxParams{Scale: 2}
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	rate, err := p.rate()
	if err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		amount, err := core.ToDecimal(in[0])
		if err != nil {
			return nil, malformed(field, in[0], "decimal", err)
		}
		return amount.Mul(rate).Round(p.Scale), nil
	}, nil
}

// newTotal computes amount + round(amount * rate, scale) from one source, or
// the sum of two sources (amount and an already derived tax).
func newTotal(m Mapping, _ *Env) (Func, error) {
	inputs := m.Inputs()
	if len(inputs) != 1 && len(inputs) != 2 {
		return nil, fmt.Errorf("expects 1 or 2 source fields, got %d", len(inputs))
	}
	p := taxParams{Scale: 2}
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	rate, err := p.rate()
	if err != nil {
		return nil, err
	}
	return func(in []any) (any, error) {
		vals := make([]decimal.Decimal, len(in))
		for i, v := range in {
			if blank(v) {
				return nil, nil
			}
			d, err := core.ToDecimal(v)
			if err != nil {
				return nil, malformed(inputs[i], v, "decimal", err)
			}
			vals[i] = d
		}
		if len(vals) == 2 {
			return vals[0].Add(vals[1]), nil
		}
		return vals[0].Add(vals[0].Mul(rate).Round(p.Scale)), nil
	}, nil
}

// newDaysSince counts whole calendar days from the input date to today.
func newDaysSince(m Mapping, env *Env) (Func, error) {
	if err := requireInputs(m, 1); err != nil {
		return nil, err
	}
	if err := decodeParams(m.Params, &struct{}{}); err != nil {
		return nil, err
	}
	field := m.Inputs()[0]
	return func(in []any) (any, error) {
		if blank(in[0]) {
			return nil, nil
		}
		t, err := core.ToTime(in[0])
		if err != nil {
			return nil, malformed(field, in[0], "date", err)
		}
		diff := core.TruncateDate(env.Now()).Sub(core.TruncateDate(t))
		return int64(diff / (24 * time.Hour)), nil
	}, nil
}

type constantParams struct {
	Value any `mapstructure:"value"`
}

func newConstant(m Mapping, _ *Env) (Func, error) {
	var p constantParams
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	v := core.Canonical(p.Value)
	return func([]any) (any, error) { return v, nil }, nil
}

type exprParams struct {
	Expression string         `mapstructure:"expression"`
	Type       core.FieldType `mapstructure:"type"`
}

// newExpr evaluates a Starlark expression with each source bound by name and
// coerces the result to the declared type.
func newExpr(m Mapping, _ *Env) (Func, error) {
	p := exprParams{Type: core.TypeString}
	if err := decodeParams(m.Params, &p); err != nil {
		return nil, err
	}
	if p.Expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("unknown result type %q", p.Type)
	}
	expr, err := starctx.Compile(p.Expression, m.Inputs())
	if err != nil {
		return nil, err
	}
	return func(in []any) (any, error) {
		v, err := expr.Eval(in)
		if err != nil {
			return nil, malformed(m.Target, nil, string(p.Type), err)
		}
		out, err := core.Coerce(v, p.Type)
		if err != nil {
			return nil, malformed(m.Target, v, string(p.Type), err)
		}
		return out, nil
	}, nil
}
