// Package starlark evaluates derivation expressions over normalized record fields.
package starlark

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var fileOptions = &syntax.FileOptions{}

// Expr is a parsed Starlark expression. It is safe for concurrent use.
type Expr struct {
	src   string
	names []string
}

// Compile parses src and checks that it is a single expression.
// names lists the variables the expression may reference.
func Compile(src string, names []string) (*Expr, error) {
	if _, err := fileOptions.ParseExpr("expr", src, 0); err != nil {
		return nil, &EvalError{Expr: src, Message: err.Error()}
	}
	return &Expr{src: src, names: names}, nil
}

// String returns the expression source.
func (e *Expr) String() string { return e.src }

// Eval evaluates the expression with vals bound to the declared names in order.
func (e *Expr) Eval(vals []any) (any, error) {
	if len(vals) != len(e.names) {
		return nil, fmt.Errorf("expression %q expects %d values, got %d", e.src, len(e.names), len(vals))
	}

	env := make(starlark.StringDict, len(builtins)+len(e.names))
	for k, v := range builtins {
		env[k] = v
	}
	for i, name := range e.names {
		sv, err := ToStarlark(vals[i])
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		env[name] = sv
	}

	thread := &starlark.Thread{
		Name:  "expr",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	result, err := starlark.EvalOptions(fileOptions, thread, "expr", e.src, env)
	if err != nil {
		return nil, &EvalError{Expr: e.src, Message: err.Error()}
	}
	return ToGo(result)
}

var builtins = starlark.StringDict{
	"round":    starlark.NewBuiltin("round", roundBuiltin),
	"coalesce": starlark.NewBuiltin("coalesce", coalesceBuiltin),
}

// roundBuiltin implements round(x, digits=0) with half-away-from-zero rounding.
func roundBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	digits := 0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "digits?", &digits); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: want number, got %s", b.Name(), x.Type())
	}
	scale := math.Pow(10, float64(digits))
	return starlark.Float(math.Round(f*scale) / scale), nil
}

// coalesceBuiltin returns the first argument that is not None.
func coalesceBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	for _, a := range args {
		if a != starlark.None {
			return a, nil
		}
	}
	return starlark.None, nil
}

// EvalError represents an error during Starlark expression evaluation.
type EvalError struct {
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Message)
}
