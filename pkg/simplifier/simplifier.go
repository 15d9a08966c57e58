// Package simplifier rewrites checked Gondola trees into cheaper
// equivalent ones.
//
// The pass runs bottom-up once. It removes identities such as
// "X and true" or "X + 0", cancels double negations, selects the branch of
// conditionals with a literal condition and folds operators whose operands
// are all literals. A rule only fires when the replacement has the same
// resolved type as the node it replaces, so simplification never changes
// the type of an expression. Subtrees reading quotes or variables, writing
// variables, looping or calling custom functions are never folded.
package simplifier

import (
	"context"

	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/types"
)

// folder evaluates literal-only subtrees.
var folder = evaluator.New()

// Simplify rewrites the checked tree rooted at n and returns the node
// that replaces it. Descendants are substituted in place; the caller
// decides whether to substitute the returned node for n. A returned node
// other than n has no parent, and n must not be used afterwards.
//
// Unchecked trees are returned unchanged.
func Simplify(n *types.Node) *types.Node {
	s := &simplifier{}
	return s.simplify(n)
}

// SimplifyExpression simplifies the tree of expr, installs the result as
// its root and drops metadata of nodes that did not survive. Replacement
// nodes inherit the source token of the node they stand for.
func SimplifyExpression(expr *types.Expression) *types.Expression {
	s := &simplifier{meta: expr.Metadata()}
	root := s.simplify(expr.Root())
	expr.SetRoot(root)
	if root != nil {
		expr.Metadata().Prune(root)
	}
	return expr
}

type simplifier struct {
	meta *types.ParseMetadata
}

func (s *simplifier) simplify(n *types.Node) *types.Node {
	if n == nil || n.Type() == types.Undefined {
		return n
	}
	for i := 0; i < n.Arity(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		if r := s.simplify(c); r != c {
			// r is detached, c is released by SetChild.
			_, _ = n.SetChild(r, i)
		}
	}
	return s.rewrite(n)
}

func (s *simplifier) rewrite(n *types.Node) *types.Node {
	if r := identity(n); r != nil && r.Type() == n.Type() {
		return s.replace(n, r)
	}
	if r := fold(n); r != nil {
		return s.replace(n, r)
	}
	return n
}

func (s *simplifier) replace(old, r *types.Node) *types.Node {
	s.meta.Inherit(old, r)
	r.Detach()
	return r
}

// identity returns the operand n reduces to, or nil.
func identity(n *types.Node) *types.Node {
	switch n.Kind {
	case types.KindBinary:
		l, r := n.Child(0), n.Child(1)
		switch n.Op {
		case types.OpAnd:
			switch {
			case isBool(l, true):
				return r
			case isBool(r, true):
				return l
			case isBool(l, false):
				// The right operand is never evaluated.
				return l
			}
		case types.OpOr:
			switch {
			case isBool(l, false):
				return r
			case isBool(r, false):
				return l
			case isBool(l, true):
				return l
			}
		case types.OpAdd:
			switch {
			case isNumber(l, 0):
				return r
			case isNumber(r, 0):
				return l
			}
		case types.OpSub:
			if isNumber(r, 0) {
				return l
			}
		case types.OpMul:
			switch {
			case isNumber(l, 1):
				return r
			case isNumber(r, 1):
				return l
			}
		case types.OpDiv:
			if isNumber(r, 1) {
				return l
			}
		}

	case types.KindUnary:
		if c := n.Child(0); c.Kind == types.KindUnary && c.Op == n.Op {
			return c.Child(0)
		}

	case types.KindIf:
		if cond := n.Child(0); cond.IsConstant() {
			if types.IsTrue(cond.Value) {
				return n.Child(1)
			}
			return n.Child(2)
		}
	}
	return nil
}

func isBool(n *types.Node, b bool) bool {
	return n.IsConstant() && n.Type() == types.Boolean && types.IsTrue(n.Value) == b
}

func isNumber(n *types.Node, v float64) bool {
	return n.IsConstant() && n.Type().IsNumeric() && n.Value == v
}

// fold replaces a pure operator whose operands are all literals with its
// value. Subtrees that fail to evaluate are kept so the failure surfaces
// at evaluation time.
func fold(n *types.Node) *types.Node {
	if !foldable(n) {
		return nil
	}
	for i := 0; i < n.Arity(); i++ {
		if !n.Child(i).IsConstant() {
			return nil
		}
	}
	v, err := folder.EvalNode(context.Background(), n, evaluator.Env{})
	if err != nil {
		return nil
	}
	c := types.NewConstant(n.Type(), v)
	c.SetType(n.Type())
	return c
}

func foldable(n *types.Node) bool {
	switch n.Kind {
	case types.KindUnary, types.KindBinary, types.KindIf:
		return true
	case types.KindCall:
		switch n.Func {
		case types.FuncAbs, types.FuncSqrt, types.FuncLog, types.FuncExp, types.FuncPercent:
			return true
		}
	}
	return false
}
