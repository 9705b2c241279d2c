// Package app provides application services that orchestrate domain logic.
package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/domain/view"
)

// TransformService derives computed fields. Concat transformers join
// component values; expr transformers evaluate an Expr expression with the
// component fields in scope.
type TransformService struct {
	programs map[string]*vm.Program
	mu       sync.RWMutex

	options []expr.Option
}

// exprFunc is a helper exposed to expr transformers. arity < 0 accepts any
// number of arguments.
type exprFunc struct {
	name  string
	arity int
	fn    func(args ...any) any
}

var exprFuncs = []exprFunc{
	{"lower", 1, func(a ...any) any { return strings.ToLower(toString(a[0])) }},
	{"upper", 1, func(a ...any) any { return strings.ToUpper(toString(a[0])) }},
	{"trim", 1, func(a ...any) any { return strings.TrimSpace(toString(a[0])) }},
	{"replace", 3, func(a ...any) any {
		return strings.ReplaceAll(toString(a[0]), toString(a[1]), toString(a[2]))
	}},
	// mask keeps the last n characters of a sensitive value.
	{"mask", 2, func(a ...any) any {
		str, n := toString(a[0]), int(toFloat(a[1]))
		if n < 0 || n >= len(str) {
			return str
		}
		return strings.Repeat("*", len(str)-n) + str[len(str)-n:]
	}},
	{"sha256", 1, func(a ...any) any {
		h := sha256.Sum256([]byte(toString(a[0])))
		return hex.EncodeToString(h[:])
	}},
	{"coalesce", -1, func(a ...any) any {
		for _, v := range a {
			if !isBlank(v) {
				return v
			}
		}
		return nil
	}},
	{"default", 2, func(a ...any) any {
		if isBlank(a[0]) {
			return a[1]
		}
		return a[0]
	}},
	{"round", 2, func(a ...any) any {
		p := math.Pow(10, toFloat(a[1]))
		return math.Round(toFloat(a[0])*p) / p
	}},
	{"toString", 1, func(a ...any) any { return toString(a[0]) }},
	{"toFloat", 1, func(a ...any) any { return toFloat(a[0]) }},
}

// NewTransformService creates a transform service with the helper
// functions registered.
func NewTransformService() *TransformService {
	s := &TransformService{
		programs: make(map[string]*vm.Program),
		options:  []expr.Option{expr.AllowUndefinedVariables()},
	}
	for _, f := range exprFuncs {
		s.options = append(s.options, expr.Function(f.name, f.call))
	}
	return s
}

func (f exprFunc) call(params ...any) (any, error) {
	if f.arity >= 0 && len(params) != f.arity {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", f.name, f.arity, len(params))
	}
	return f.fn(params...), nil
}

// Derive computes the value of a derived field from row.
func (s *TransformService) Derive(f *schema.Field, row value.Row) (value.Value, error) {
	if f.Transformer == nil {
		return value.Null(), fmt.Errorf("field %s has no transformer", f.Name)
	}

	switch f.Transformer.Kind() {
	case schema.TransformConcat:
		return view.Concat(f.Transformer, row), nil
	case schema.TransformExpr:
		env := make(map[string]any, len(f.Transformer.Fields))
		for _, c := range f.Transformer.Fields {
			env[c] = row.Get(c).Any()
		}
		out, err := s.Eval(f.Transformer.Expression, env)
		if err != nil {
			return value.Null(), fmt.Errorf("field %s: %w", f.Name, err)
		}
		return value.FromAny(out), nil
	default:
		return value.Null(), fmt.Errorf("field %s: unknown transformer type %q", f.Name, f.Transformer.Type)
	}
}

// Compile checks an expression without evaluating it.
func (s *TransformService) Compile(expression string) error {
	_, err := s.getOrCompile(expression)
	return err
}

// Eval evaluates an Expr expression with the given data context.
func (s *TransformService) Eval(expression string, data map[string]any) (any, error) {
	program, err := s.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}

	result, err := expr.Run(program, data)
	if err != nil {
		return nil, fmt.Errorf("run expression: %w", err)
	}

	return result, nil
}

func (s *TransformService) getOrCompile(expression string) (*vm.Program, error) {
	s.mu.RLock()
	program, ok := s.programs[expression]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	opts := append([]expr.Option{expr.Env(map[string]any{})}, s.options...)
	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.programs[expression] = program
	s.mu.Unlock()
	return program, nil
}

// ClearCache drops compiled programs.
func (s *TransformService) ClearCache() {
	s.mu.Lock()
	s.programs = make(map[string]*vm.Program)
	s.mu.Unlock()
}

func isBlank(v any) bool {
	return v == nil || v == ""
}

// toString renders helper arguments. Row values reach expressions through
// value.Value.Any, so only plain Go types appear here.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return value.FromAny(v).String()
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}

// Ensure interface compliance.
var _ view.Deriver = (*TransformService)(nil)
