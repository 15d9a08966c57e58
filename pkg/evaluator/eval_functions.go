package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/moisespsena-go/tracederror"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

// evalCall evaluates a builtin or custom function call.
func (e *Evaluator) evalCall(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	fn := node.Func
	switch {
	case fn == types.FuncCustom:
		return e.evalCustom(ctx, node, st)
	case fn.IsWindow(), fn == types.FuncLag, fn == types.FuncRising, fn == types.FuncRSI:
		return e.evalWindow(ctx, node, st)
	case fn.IsDate():
		return e.evalDate(node, st)
	}

	x, err := e.evalNode(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}

	switch fn {
	case types.FuncAbs:
		return math.Abs(x), nil
	case types.FuncSqrt:
		if x < 0 {
			return 0, st.failf(node, types.ErrInvalidOperand, "square root of negative number %v", x)
		}
		return math.Sqrt(x), nil
	case types.FuncLog:
		if x <= 0 {
			return 0, st.failf(node, types.ErrInvalidOperand, "logarithm of non-positive number %v", x)
		}
		return math.Log(x), nil
	case types.FuncExp:
		return checkArithmetic(node, st, math.Exp(x))
	case types.FuncPercent:
		p, err := e.evalNode(ctx, node.Child(1), st)
		if err != nil {
			return 0, err
		}
		return checkArithmetic(node, st, x*p/100)
	}
	return 0, st.failf(node, types.ErrUndefinedFunction, "unknown function %s", fn)
}

// evalDate reads the calendar date of the evaluation day. Days of the
// week count from Sunday = 1.
func (e *Evaluator) evalDate(node *types.Node, st *evalState) (float64, error) {
	dated, ok := st.Quotes.(types.DatedSource)
	if !ok {
		return 0, st.failf(node, types.ErrNoDates, "quote source has no trading dates for %s()", node.Func)
	}
	if days := st.Quotes.Days(st.Symbol); st.Day < 0 || st.Day >= days {
		return 0, st.failf(node, types.ErrDayOutOfRange, "day %d out of range [0, %d)", st.Day, days)
	}
	t, err := dated.Date(st.Symbol, st.Day)
	if err != nil {
		return 0, st.failf(node, types.ErrMissingQuote, "no date for day %d", st.Day).WithCause(err)
	}
	switch node.Func {
	case types.FuncDayOfWeek:
		return float64(t.Weekday() - time.Sunday + 1), nil
	case types.FuncDayOfMonth:
		return float64(t.Day()), nil
	case types.FuncDayOfYear:
		return float64(t.YearDay()), nil
	case types.FuncMonth:
		return float64(t.Month()), nil
	default:
		return float64(t.Year()), nil
	}
}

func (e *Evaluator) evalCustom(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	def, ok := e.functions.Lookup(node.Text)
	if !ok {
		return 0, st.failf(node, types.ErrUndefinedFunction, "function %s is not registered", node.Text)
	}
	args := make([]float64, node.Arity())
	for i := range args {
		v, err := e.evalNode(ctx, node.Child(i), st)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	if err := ctx.Err(); err != nil {
		return 0, st.failf(node, types.ErrEvaluationCancelled, "call to %s interrupted", def.Name).WithCause(err)
	}

	v, err := e.callCustom(ctx, def, args)
	if err != nil {
		if ge, ok := types.AsError(err); ok && ge.Category() == types.CategoryEvaluation {
			return 0, st.decorate(node, ge)
		}
		return 0, st.failf(node, types.ErrFunctionFailed, "%s failed", def.Name).WithCause(err)
	}
	if def.Result == types.Boolean {
		return types.FromBool(types.IsTrue(v)), nil
	}
	if def.Result == types.Integer {
		v = math.Trunc(v)
	}
	return checkArithmetic(node, st, v)
}

// callCustom runs a custom implementation, turning panics into traced
// errors.
func (e *Evaluator) callCustom(ctx context.Context, def functions.Definition, args []float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			traced := tracederror.New(fmt.Errorf("panic in %s: %v", def.Name, r))
			e.logger.Error("custom function panicked",
				"function", def.Name,
				"panic", fmt.Sprint(r),
				"trace", string(traced.Trace()))
			v, err = 0, traced
		}
	}()
	return def.Fn(ctx, args...)
}
