// Package checker implements the Gondola type checker.
//
// Check walks a tree bottom-up: operands are checked before the node that
// consumes them, and every node records its resolved type. The first
// mismatch aborts the whole check; there is no partial result.
//
// # Example
//
//	t, err := checker.CheckExpression(expr)
//	if types.IsTypeMismatch(err) {
//	    // the formula can never be evaluated
//	}
package checker

import (
	"fmt"

	"github.com/sandrolain/gondola/pkg/types"
)

// CheckExpression type checks the tree of expr, using its parse metadata
// for error lines.
func CheckExpression(expr *types.Expression) (types.Type, error) {
	return Check(expr.Root(), expr.Metadata())
}

// Check type checks the tree rooted at root and returns its type.
// meta may be nil.
func Check(root *types.Node, meta *types.ParseMetadata) (types.Type, error) {
	c := &checker{meta: meta}
	return c.check(root)
}

type checker struct {
	meta *types.ParseMetadata
}

func (c *checker) check(n *types.Node) (types.Type, error) {
	if n == nil {
		return types.Undefined, types.Errorf(types.ErrIncompleteTree, "incomplete expression tree")
	}

	var buf [4]types.Type
	operands := buf[:0]
	for i := 0; i < n.Arity(); i++ {
		child := n.Child(i)
		if child == nil {
			return types.Undefined, c.errorf(types.ErrIncompleteTree, n, "%s has an empty operand slot %d", n.Kind, i)
		}
		t, err := c.check(child)
		if err != nil {
			return types.Undefined, err
		}
		operands = append(operands, t)
	}

	t, err := c.resolve(n, operands)
	if err != nil {
		return types.Undefined, err
	}
	n.SetType(t)
	return t, nil
}

func (c *checker) resolve(n *types.Node, ops []types.Type) (types.Type, error) {
	if want := n.Kind.Arity(); want >= 0 && want != len(ops) {
		return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "%s expects %d operands, got %d", n.Kind, want, len(ops))
	}

	switch n.Kind {
	case types.KindConstant:
		switch n.Decl {
		case types.Boolean, types.Integer, types.Float, types.ShortInteger:
			return n.Decl, nil
		}
		return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "constant of type %s", n.Decl)

	case types.KindString:
		return types.String, nil

	case types.KindVariable:
		switch n.Decl {
		case types.Boolean, types.Integer, types.Float:
			return n.Decl, nil
		}
		return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "variable %s has no storable type", n.Text)

	case types.KindQuote:
		return n.Field.Type(), nil

	case types.KindUnary:
		return c.resolveUnary(n, ops)

	case types.KindBinary:
		return c.resolveBinary(n, ops)

	case types.KindIf:
		if err := c.expect(n, 0, types.Boolean, ops); err != nil {
			return types.Undefined, err
		}
		return c.branches(n, 1, 2, ops)

	case types.KindAssign, types.KindDefine:
		if n.Kind == types.KindAssign && n.Constant {
			return types.Undefined, c.errorf(types.ErrAssignToConstant, n, "cannot assign to constant %s", n.Text)
		}
		if err := c.expectStorable(n, ops[0]); err != nil {
			return types.Undefined, err
		}
		return n.Decl, nil

	case types.KindSequence:
		return ops[1].Underlying(), nil

	case types.KindFor:
		if err := c.expect(n, 1, types.Boolean, ops); err != nil {
			return types.Undefined, err
		}
		return ops[3].Underlying(), nil

	case types.KindCall:
		if n.Func == types.FuncCustom {
			return c.resolveCustom(n, ops)
		}
		return c.resolveBuiltin(n, ops)
	}

	return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "unsupported node kind %s", n.Kind)
}

func (c *checker) resolveUnary(n *types.Node, ops []types.Type) (types.Type, error) {
	switch n.Op {
	case types.OpNot:
		if err := c.expect(n, 0, types.Boolean, ops); err != nil {
			return types.Undefined, err
		}
		return types.Boolean, nil
	case types.OpNegate:
		if err := c.expect(n, 0, types.Numeric, ops); err != nil {
			return types.Undefined, err
		}
		return ops[0].Underlying(), nil
	}
	return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "unknown unary operator %s", n.Op)
}

func (c *checker) resolveBinary(n *types.Node, ops []types.Type) (types.Type, error) {
	switch {
	case n.Op.IsArithmetic():
		if err := c.expectAll(n, types.Numeric, ops); err != nil {
			return types.Undefined, err
		}
		return types.Promote(ops[0], ops[1]), nil

	case n.Op == types.OpEq || n.Op == types.OpNe:
		// Booleans compare with booleans, numbers with numbers.
		if ops[0] == types.Boolean {
			if err := c.expect(n, 1, types.Boolean, ops); err != nil {
				return types.Undefined, err
			}
			return types.Boolean, nil
		}
		if err := c.expectAll(n, types.Numeric, ops); err != nil {
			return types.Undefined, err
		}
		return types.Boolean, nil

	case n.Op.IsComparison():
		if err := c.expectAll(n, types.Numeric, ops); err != nil {
			return types.Undefined, err
		}
		return types.Boolean, nil

	case n.Op.IsLogical():
		if err := c.expectAll(n, types.Boolean, ops); err != nil {
			return types.Undefined, err
		}
		return types.Boolean, nil
	}
	return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "unknown binary operator %s", n.Op)
}

// branches resolves two alternatives that must agree: both boolean or
// both numeric.
func (c *checker) branches(n *types.Node, a, b int, ops []types.Type) (types.Type, error) {
	if ops[a] == types.Boolean {
		if err := c.expect(n, b, types.Boolean, ops); err != nil {
			return types.Undefined, err
		}
		return types.Boolean, nil
	}
	if err := c.expect(n, a, types.Numeric, ops); err != nil {
		return types.Undefined, err
	}
	if err := c.expect(n, b, types.Numeric, ops); err != nil {
		return types.Undefined, err
	}
	return types.Promote(ops[a], ops[b]), nil
}

func (c *checker) expectStorable(n *types.Node, actual types.Type) error {
	ok := false
	switch n.Decl {
	case types.Boolean:
		ok = actual == types.Boolean
	case types.Integer:
		ok = actual.IsIntegral()
	case types.Float:
		ok = actual.IsNumeric()
	default:
		return c.errorf(types.ErrTypeMismatch, n, "variable %s has no storable type", n.Text)
	}
	if !ok {
		return c.mismatch(n.Child(0), n.Decl, actual)
	}
	return nil
}

func (c *checker) resolveBuiltin(n *types.Node, ops []types.Type) (types.Type, error) {
	fn := n.Func
	if want := fn.Arity(); want != len(ops) {
		return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "%s expects %d operands, got %d", fn, want, len(ops))
	}

	switch fn {
	case types.FuncLag:
		if err := c.expectSeq(n, ops, types.FloatQuoteField, types.Integer); err != nil {
			return types.Undefined, err
		}
		return ops[0], nil

	case types.FuncAvg, types.FuncStdDev, types.FuncEMA:
		if err := c.expectSeq(n, ops, types.FloatQuoteField, types.Integer, types.Integer); err != nil {
			return types.Undefined, err
		}
		return types.Float, nil

	case types.FuncSum, types.FuncMin, types.FuncMax, types.FuncMomentum:
		if err := c.expectSeq(n, ops, types.FloatQuoteField, types.Integer, types.Integer); err != nil {
			return types.Undefined, err
		}
		return ops[0].Underlying(), nil

	case types.FuncRSI:
		if err := c.expectSeq(n, ops, types.Integer, types.Integer); err != nil {
			return types.Undefined, err
		}
		return types.Float, nil

	case types.FuncRising:
		if err := c.expectSeq(n, ops, types.FloatQuoteField, types.Integer); err != nil {
			return types.Undefined, err
		}
		return types.Boolean, nil

	case types.FuncAbs:
		if err := c.expectSeq(n, ops, types.Numeric); err != nil {
			return types.Undefined, err
		}
		return ops[0].Underlying(), nil

	case types.FuncSqrt, types.FuncLog, types.FuncExp:
		if err := c.expectSeq(n, ops, types.Numeric); err != nil {
			return types.Undefined, err
		}
		return types.Float, nil

	case types.FuncPercent:
		if err := c.expectSeq(n, ops, types.Numeric, types.Numeric); err != nil {
			return types.Undefined, err
		}
		return types.Float, nil

	case types.FuncDayOfWeek, types.FuncDayOfMonth, types.FuncDayOfYear, types.FuncMonth, types.FuncYear:
		return types.Integer, nil
	}
	return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "unknown function %s", fn)
}

func (c *checker) resolveCustom(n *types.Node, ops []types.Type) (types.Type, error) {
	if n.Sig == nil {
		return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "function %s has no signature", n.Text)
	}
	if len(n.Sig.Params) != len(ops) {
		return types.Undefined, c.errorf(types.ErrTypeMismatch, n, "%s expects %d operands, got %d", n.Text, len(n.Sig.Params), len(ops))
	}
	if err := c.expectSeq(n, ops, n.Sig.Params...); err != nil {
		return types.Undefined, err
	}
	return n.Sig.Result, nil
}

func (c *checker) expect(n *types.Node, i int, want types.Type, ops []types.Type) error {
	if !want.Accepts(ops[i]) {
		return c.mismatch(n.Child(i), want, ops[i])
	}
	return nil
}

func (c *checker) expectAll(n *types.Node, want types.Type, ops []types.Type) error {
	for i := range ops {
		if err := c.expect(n, i, want, ops); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) expectSeq(n *types.Node, ops []types.Type, want ...types.Type) error {
	for i, w := range want {
		if err := c.expect(n, i, w, ops); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) mismatch(node *types.Node, want, got types.Type) error {
	err := c.errorf(types.ErrTypeMismatch, node, "%s: expected %s, got %s", node, expectedName(want), got)
	err.Expected = want
	err.Actual = got
	return err
}

func (c *checker) errorf(code types.ErrorCode, node *types.Node, format string, args ...interface{}) *types.Error {
	err := types.NewError(code, fmt.Sprintf(format, args...), -1).WithNode(node)
	if tok, ok := c.meta.Token(node); ok {
		err.Position = tok.Offset
		err.Token = tok.Text
	}
	return err.WithLine(c.meta.Line(node))
}

func expectedName(t types.Type) string {
	switch t {
	case types.FloatQuoteField, types.IntegerQuoteField:
		return "quote field"
	case types.Integer, types.ShortInteger:
		return "integer"
	}
	return t.String()
}
