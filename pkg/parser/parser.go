package parser

import (
	"fmt"
	"math"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	exprparser "github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// history functions that may appear in a trigger expression; the first
// argument is always an item id, the rest are function parameters
var historyFuncs = map[string]struct{}{
	"last":   {},
	"avg":    {},
	"min":    {},
	"max":    {},
	"sum":    {},
	"count":  {},
	"change": {},
	"nodata": {},
}

func IsHistoryFunc(name string) bool {
	_, has := historyFuncs[name]
	return has
}

// FuncRef is one history-function call referenced by an expression, e.g.
// avg(10023, "300") yields {Name: "avg", ItemID: 10023, Params: ["300"]}.
type FuncRef struct {
	Name   string
	ItemID int64
	Params []string
}

// EvalFunc resolves one function reference to a numeric value.
type EvalFunc func(name string, itemID int64, params []string) (float64, error)

// Expression is a parsed and compiled trigger expression together with the
// function references extracted from its AST.
type Expression struct {
	Text    string
	Refs    []FuncRef
	program *vm.Program
}

func Parse(text string) (*Expression, error) {
	if text == "" {
		return nil, fmt.Errorf("expression is empty")
	}

	tree, err := exprparser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %v", text, err)
	}

	v := &refVisitor{}
	ast.Walk(&tree.Node, v)
	if v.err != nil {
		return nil, fmt.Errorf("bad expression %q: %v", text, v.err)
	}

	program, err := expr.Compile(text, expr.Env(evalEnv(nil)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %v", text, err)
	}

	return &Expression{Text: text, Refs: v.refs, program: program}, nil
}

// ItemIDs returns the distinct item ids the expression depends on.
func (e *Expression) ItemIDs() []int64 {
	seen := make(map[int64]struct{}, len(e.Refs))
	ids := make([]int64, 0, len(e.Refs))
	for _, ref := range e.Refs {
		if _, has := seen[ref.ItemID]; has {
			continue
		}
		seen[ref.ItemID] = struct{}{}
		ids = append(ids, ref.ItemID)
	}
	return ids
}

// Execute runs the compiled program, resolving every history function via
// eval. The first resolution failure aborts the run; expression results are
// coerced to float64 the same way for every caller.
func (e *Expression) Execute(eval EvalFunc) (float64, error) {
	var evalErr error
	wrapped := func(name string, itemID int64, params []string) (float64, error) {
		v, err := eval(name, itemID, params)
		if err != nil && evalErr == nil {
			evalErr = err
		}
		if err != nil {
			return math.NaN(), err
		}
		return v, nil
	}

	output, err := expr.Run(e.program, evalEnv(wrapped))
	if evalErr != nil {
		return 0, evalErr
	}
	if err != nil {
		return 0, err
	}

	switch result := output.(type) {
	case float64:
		if math.IsNaN(result) {
			return 0, fmt.Errorf("expression %q evaluated to NaN", e.Text)
		}
		return result, nil
	case bool:
		if result {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(result), nil
	default:
		return 0, fmt.Errorf("expression %q evaluated to unexpected type %T", e.Text, output)
	}
}

// evalEnv builds the run environment: one variadic closure per history
// function. A nil eval produces the prototype used at compile time.
func evalEnv(eval func(name string, itemID int64, params []string) (float64, error)) map[string]interface{} {
	env := make(map[string]interface{}, len(historyFuncs))
	for name := range historyFuncs {
		fname := name
		env[fname] = func(args ...interface{}) (float64, error) {
			if eval == nil {
				return 0, fmt.Errorf("%s: evaluator not bound", fname)
			}
			itemID, params, err := splitArgs(fname, args)
			if err != nil {
				return 0, err
			}
			return eval(fname, itemID, params)
		}
	}
	return env
}

func splitArgs(name string, args []interface{}) (int64, []string, error) {
	if len(args) == 0 {
		return 0, nil, fmt.Errorf("%s: missing item id argument", name)
	}

	itemID, err := argInt64(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %v", name, err)
	}

	params := make([]string, 0, len(args)-1)
	for _, arg := range args[1:] {
		params = append(params, argString(arg))
	}
	return itemID, params, nil
}

func argInt64(arg interface{}) (int64, error) {
	switch v := arg.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("item id has unexpected type %T", arg)
	}
}

func argString(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

type refVisitor struct {
	refs []FuncRef
	err  error
}

func (v *refVisitor) Visit(node *ast.Node) {
	call, ok := (*node).(*ast.CallNode)
	if !ok {
		return
	}

	ident, ok := call.Callee.(*ast.IdentifierNode)
	if !ok || !IsHistoryFunc(ident.Value) {
		return
	}

	if len(call.Arguments) == 0 {
		v.err = fmt.Errorf("%s: missing item id argument", ident.Value)
		return
	}

	ref := FuncRef{Name: ident.Value}
	switch arg := call.Arguments[0].(type) {
	case *ast.IntegerNode:
		ref.ItemID = int64(arg.Value)
	default:
		v.err = fmt.Errorf("%s: item id must be an integer literal", ident.Value)
		return
	}

	for _, arg := range call.Arguments[1:] {
		switch p := arg.(type) {
		case *ast.IntegerNode:
			ref.Params = append(ref.Params, strconv.Itoa(p.Value))
		case *ast.FloatNode:
			ref.Params = append(ref.Params, strconv.FormatFloat(p.Value, 'f', -1, 64))
		case *ast.StringNode:
			ref.Params = append(ref.Params, p.Value)
		default:
			v.err = fmt.Errorf("%s: unsupported parameter node %T", ident.Value, arg)
			return
		}
	}

	v.refs = append(v.refs, ref)
}
