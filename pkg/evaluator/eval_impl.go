package evaluator

import (
	"context"
	"math"

	"github.com/sandrolain/gondola/pkg/types"
)

// evalNode evaluates a node at the point held by st.
func (e *Evaluator) evalNode(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	if e.opts.MaxDepth > 0 && st.depth >= e.opts.MaxDepth {
		return 0, st.failf(node, types.ErrRecursionDepth, "maximum recursion depth %d exceeded", e.opts.MaxDepth)
	}
	st.depth++
	v, err := e.dispatch(ctx, node, st)
	st.depth--
	return v, err
}

func (e *Evaluator) dispatch(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	if node == nil {
		return 0, types.Errorf(types.ErrIncompleteTree, "incomplete expression tree").AtDay(st.Symbol, st.Day)
	}

	// Debug logging
	if e.opts.Debug {
		e.logger.Debug("evaluating node",
			"kind", node.Kind,
			"node", node.String(),
			"symbol", st.Symbol,
			"day", st.Day,
			"depth", st.depth)
	}

	// Dispatch based on node kind
	switch node.Kind {
	case types.KindConstant:
		return node.Value, nil
	case types.KindString:
		return 0, st.failf(node, types.ErrInvalidOperand, "string %q has no numeric value", node.Text)
	case types.KindVariable:
		return e.evalVariable(node, st)
	case types.KindQuote:
		return e.quoteAt(node, st, node.Field, st.Day)
	case types.KindUnary:
		return e.evalUnary(ctx, node, st)
	case types.KindBinary:
		return e.evalBinary(ctx, node, st)
	case types.KindIf:
		return e.evalIf(ctx, node, st)
	case types.KindAssign:
		return e.evalAssign(ctx, node, st)
	case types.KindDefine:
		return e.evalDefine(ctx, node, st)
	case types.KindSequence:
		if _, err := e.evalNode(ctx, node.Child(0), st); err != nil {
			return 0, err
		}
		return e.evalNode(ctx, node.Child(1), st)
	case types.KindFor:
		return e.evalFor(ctx, node, st)
	case types.KindCall:
		return e.evalCall(ctx, node, st)
	default:
		return 0, st.failf(node, types.ErrInvalidOperand, "unsupported node kind: %s", node.Kind)
	}
}

// evalVariable reads a variable. Slots may hold any number: Boolean reads
// go through the truth threshold and Integer reads truncate toward zero.
func (e *Evaluator) evalVariable(node *types.Node, st *evalState) (float64, error) {
	v, err := st.Variables.Value(node.Text)
	if err != nil {
		return 0, st.decorate(node, err)
	}
	switch node.Decl {
	case types.Boolean:
		return types.FromBool(types.IsTrue(v)), nil
	case types.Integer:
		return math.Trunc(v), nil
	}
	return v, nil
}

func (e *Evaluator) evalUnary(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	v, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	switch node.Op {
	case types.OpNot:
		return types.FromBool(!types.IsTrue(v)), nil
	case types.OpNegate:
		return -v, nil
	}
	return 0, st.failf(node, types.ErrInvalidOperand, "unknown unary operator %s", node.Op)
}

func (e *Evaluator) evalBinary(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	// Handle short-circuiting operators
	switch node.Op {
	case types.OpAnd:
		return e.evalAnd(ctx, node, st)
	case types.OpOr:
		return e.evalOr(ctx, node, st)
	}

	// Evaluate both sides
	left, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	right, err := e.evalNode(ctx, node.Child(1), st)
	if err != nil {
		return 0, err
	}

	switch node.Op {
	case types.OpAdd:
		return checkArithmetic(node, st, left+right)
	case types.OpSub:
		return checkArithmetic(node, st, left-right)
	case types.OpMul:
		return checkArithmetic(node, st, left*right)
	case types.OpDiv:
		if right == 0 {
			return 0, st.failf(node, types.ErrDivisionByZero, "division by zero in %s", node)
		}
		r := left / right
		if node.Type() == types.Integer {
			r = math.Trunc(r)
		}
		return checkArithmetic(node, st, r)
	case types.OpMod:
		if right == 0 {
			return 0, st.failf(node, types.ErrDivisionByZero, "modulo by zero in %s", node)
		}
		return checkArithmetic(node, st, math.Mod(left, right))
	case types.OpEq:
		return types.FromBool(left == right), nil
	case types.OpNe:
		return types.FromBool(left != right), nil
	case types.OpLt:
		return types.FromBool(left < right), nil
	case types.OpLe:
		return types.FromBool(left <= right), nil
	case types.OpGt:
		return types.FromBool(left > right), nil
	case types.OpGe:
		return types.FromBool(left >= right), nil
	}
	return 0, st.failf(node, types.ErrInvalidOperand, "unknown binary operator %s", node.Op)
}

func (e *Evaluator) evalAnd(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	left, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	if !types.IsTrue(left) {
		return types.False, nil
	}
	right, err := e.evalNode(ctx, node.Child(1), st)
	if err != nil {
		return 0, err
	}
	return types.FromBool(types.IsTrue(right)), nil
}

func (e *Evaluator) evalOr(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	left, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	if types.IsTrue(left) {
		return types.True, nil
	}
	right, err := e.evalNode(ctx, node.Child(1), st)
	if err != nil {
		return 0, err
	}
	return types.FromBool(types.IsTrue(right)), nil
}

// evalIf evaluates only the branch selected by the condition.
func (e *Evaluator) evalIf(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	cond, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	if types.IsTrue(cond) {
		return e.evalNode(ctx, node.Child(1), st)
	}
	return e.evalNode(ctx, node.Child(2), st)
}

func (e *Evaluator) evalAssign(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	v, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	v = storedValue(node.Decl, v)
	if err := st.Variables.SetValue(node.Text, v); err != nil {
		return 0, st.decorate(node, err)
	}
	return v, nil
}

// evalDefine declares the variable on first evaluation and overwrites it
// on later ones, so the same tree can be evaluated day after day.
func (e *Evaluator) evalDefine(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	v, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	v = storedValue(node.Decl, v)
	if st.Variables.Contains(node.Text) {
		if err := st.Variables.SetValue(node.Text, v); err != nil {
			return 0, st.decorate(node, err)
		}
		return v, nil
	}
	if node.Constant {
		err = st.Variables.AddConstant(node.Text, node.Decl, v)
	} else {
		err = st.Variables.Add(node.Text, node.Decl, v)
	}
	if err != nil {
		return 0, st.failf(node, types.ErrInvalidOperand, "%v", err)
	}
	return v, nil
}

func (e *Evaluator) evalFor(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	if _, err := e.evalNode(ctx, node.Child(0), st); err != nil {
		return 0, err
	}
	var last float64
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return 0, st.failf(node, types.ErrEvaluationCancelled, "loop interrupted").WithCause(err)
		}
		if e.opts.MaxIterations > 0 && i >= e.opts.MaxIterations {
			return 0, st.failf(node, types.ErrIterationLimit, "loop exceeded %d iterations", e.opts.MaxIterations)
		}
		cond, err := e.evalNode(ctx, node.Child(1), st)
		if err != nil {
			return 0, err
		}
		if !types.IsTrue(cond) {
			break
		}
		if last, err = e.evalNode(ctx, node.Child(3), st); err != nil {
			return 0, err
		}
		if _, err := e.evalNode(ctx, node.Child(2), st); err != nil {
			return 0, err
		}
	}
	return last, nil
}

// storedValue coerces v to the representation of a slot of type t.
func storedValue(t types.Type, v float64) float64 {
	switch t {
	case types.Boolean:
		return types.FromBool(types.IsTrue(v))
	case types.Integer:
		return math.Trunc(v)
	}
	return v
}

// checkArithmetic rejects results that left the finite range.
func checkArithmetic(node *types.Node, st *evalState, r float64) (float64, error) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, st.failf(node, types.ErrInvalidOperand, "number out of range in %s", node)
	}
	return r, nil
}
