// Package filter selects records with CEL expressions such as
//
//	record.private == false && record.num_resources > 0
//
// The record is bound to the variable "record" as a map. Use has() to test
// for optional fields, e.g. has(record.license_id).
package filter

import (
	"errors"
	"fmt"

	"github.com/dnswlt/dpmap/internal/record"
	"github.com/google/cel-go/cel"
)

const recordVar = "record"

var ErrNotBool = errors.New("filter expression did not evaluate to a bool")

// Filter is a compiled filter expression. It is safe for concurrent use.
type Filter struct {
	expr string
	prg  cel.Program
}

// Compile parses and type-checks expr. An empty expression yields a nil
// *Filter, which matches every record.
func Compile(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable(recordVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create CEL environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("invalid filter %q: result type is %s, want bool", expr, t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cannot plan filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against rec.
func (f *Filter) Match(rec *record.Record) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		recordVar: rec.ToMap(),
	})
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %v", ErrNotBool, f.expr, out.Value())
	}
	return b, nil
}
