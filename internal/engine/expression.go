package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shaj13/libcache"
	_ "github.com/shaj13/libcache/lru"
)

const programCacheSize = 512

// ExpressionEvaluator abstracts boolean expression evaluation for policy conditions.
type ExpressionEvaluator interface {
	// Compile checks that the expression parses and yields a bool.
	Compile(expression string) error
	EvaluateBool(expression string, env map[string]any) (bool, error)
}

// ExprLangEvaluator uses expr-lang/expr for safe expression evaluation.
// Compiled programs are kept in an LRU keyed by expression string.
type ExprLangEvaluator struct {
	programs libcache.Cache
}

var _ ExpressionEvaluator = (*ExprLangEvaluator)(nil)

func NewExprLangEvaluator() *ExprLangEvaluator {
	return newExprLangEvaluator(programCacheSize)
}

func newExprLangEvaluator(size int) *ExprLangEvaluator {
	return &ExprLangEvaluator{programs: libcache.LRU.New(size)}
}

func (e *ExprLangEvaluator) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *ExprLangEvaluator) EvaluateBool(expression string, env map[string]any) (bool, error) {
	prog, err := e.program(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}

	isTrue, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return bool")
	}
	return isTrue, nil
}

func (e *ExprLangEvaluator) program(expression string) (*vm.Program, error) {
	if v, ok := e.programs.Load(expression); ok {
		return v.(*vm.Program), nil
	}

	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition: %w", err)
	}
	e.programs.Store(expression, prog)
	return prog, nil
}
