package evaluator

import (
	"context"
	"math"

	"github.com/sandrolain/gondola/pkg/types"
)

// quoteAt reads field for the current symbol on day.
func (e *Evaluator) quoteAt(node *types.Node, st *evalState, field types.QuoteField, day int) (float64, error) {
	if st.Quotes == nil {
		return 0, st.failf(node, types.ErrMissingQuote, "no quote source to read %s from", field)
	}
	if days := st.Quotes.Days(st.Symbol); day < 0 || day >= days {
		return 0, st.failf(node, types.ErrDayOutOfRange, "day %d out of range [0, %d) reading %s", day, days, field)
	}
	v, err := st.Quotes.Quote(st.Symbol, day, field)
	if err != nil {
		return 0, st.failf(node, types.ErrMissingQuote, "no %s quote on day %d", field, day).WithCause(err)
	}
	return v, nil
}

// quoteRef resolves an operand of quote field type to the field it reads
// and the offset from the evaluation day. Only quote references and lag
// calls have quote field types.
func (e *Evaluator) quoteRef(ctx context.Context, node *types.Node, st *evalState) (types.QuoteField, int, error) {
	switch {
	case node.Kind == types.KindQuote:
		return node.Field, 0, nil
	case node.Kind == types.KindCall && node.Func == types.FuncLag:
		field, base, err := e.quoteRef(ctx, node.Child(0), st)
		if err != nil {
			return 0, 0, err
		}
		off, err := e.evalInt(ctx, node.Child(1), st)
		if err != nil {
			return 0, 0, err
		}
		return field, base + off, nil
	}
	return 0, 0, st.failf(node, types.ErrInvalidOperand, "%s is not a quote reference", node)
}

func (e *Evaluator) evalInt(ctx context.Context, node *types.Node, st *evalState) (int, error) {
	v, err := e.evalNode(ctx, node, st)
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(v)), nil
}

// window reads days consecutive values of the quote referenced by the
// first operand, ending at the day selected by the offset operand.
// Values are returned oldest first.
func (e *Evaluator) window(ctx context.Context, node *types.Node, st *evalState, extra int) (types.QuoteField, []float64, error) {
	field, base, err := e.quoteRef(ctx, node.Child(0), st)
	if err != nil {
		return 0, nil, err
	}
	days, err := e.evalInt(ctx, node.Child(1), st)
	if err != nil {
		return 0, nil, err
	}
	off := 0
	if node.Arity() > 2 {
		if off, err = e.evalInt(ctx, node.Child(2), st); err != nil {
			return 0, nil, err
		}
	}
	values, err := e.series(node, st, field, st.Day+base+off, days, extra)
	return field, values, err
}

// series reads days+extra values of field ending at day end.
func (e *Evaluator) series(node *types.Node, st *evalState, field types.QuoteField, end, days, extra int) ([]float64, error) {
	if days <= 0 {
		return nil, st.failf(node, types.ErrInvalidWindow, "%s needs a positive number of days, got %d", node.Func, days)
	}
	n := days + extra
	start := end - n + 1
	if st.Quotes == nil {
		return nil, st.failf(node, types.ErrMissingQuote, "no quote source to read %s from", field)
	}
	if total := st.Quotes.Days(st.Symbol); start < 0 || end >= total {
		return nil, st.failf(node, types.ErrDayOutOfRange, "days %d to %d out of range [0, %d) reading %s", start, end, total, field)
	}
	values := acquireSeries(n)
	for i := range values {
		v, err := e.quoteAt(node, st, field, start+i)
		if err != nil {
			releaseSeries(values)
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (e *Evaluator) evalWindow(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	extra := 0
	switch node.Func {
	case types.FuncLag:
		field, off, err := e.quoteRef(ctx, node, st)
		if err != nil {
			return 0, err
		}
		return e.quoteAt(node, st, field, st.Day+off)
	case types.FuncRSI:
		return e.evalRSI(ctx, node, st)
	case types.FuncMomentum, types.FuncRising:
		// One extra value: the day the change is measured from.
		extra = 1
	case types.FuncAvg, types.FuncSum, types.FuncMin, types.FuncMax, types.FuncStdDev, types.FuncEMA:
	default:
		return 0, st.failf(node, types.ErrInvalidOperand, "unknown quote function %s", node.Func)
	}

	_, values, err := e.window(ctx, node, st, extra)
	if err != nil {
		return 0, err
	}
	defer releaseSeries(values)
	return reduceWindow(node.Func, values), nil
}

// reduceWindow folds a window of values, oldest first, with fn.
func reduceWindow(fn types.Func, values []float64) float64 {
	switch fn {
	case types.FuncAvg:
		return mean(values)

	case types.FuncSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum

	case types.FuncMin, types.FuncMax:
		r := values[0]
		for _, v := range values[1:] {
			if fn == types.FuncMin {
				r = math.Min(r, v)
			} else {
				r = math.Max(r, v)
			}
		}
		return r

	case types.FuncStdDev:
		m := mean(values)
		var ss float64
		for _, v := range values {
			ss += (v - m) * (v - m)
		}
		return math.Sqrt(ss / float64(len(values)))

	case types.FuncEMA:
		k := 2 / float64(len(values)+1)
		ema := values[0]
		for _, v := range values[1:] {
			ema += k * (v - ema)
		}
		return ema

	case types.FuncMomentum:
		return values[len(values)-1] - values[0]

	case types.FuncRising:
		for i := 1; i < len(values); i++ {
			if values[i] <= values[i-1] {
				return types.False
			}
		}
		return types.True
	}
	return 0
}

// evalRSI computes the relative strength index of the closing price over
// days, ending at the offset day.
func (e *Evaluator) evalRSI(ctx context.Context, node *types.Node, st *evalState) (float64, error) {
	days, err := e.evalInt(ctx, node.Child(0), st)
	if err != nil {
		return 0, err
	}
	off, err := e.evalInt(ctx, node.Child(1), st)
	if err != nil {
		return 0, err
	}
	values, err := e.series(node, st, types.FieldClose, st.Day+off, days, 1)
	if err != nil {
		return 0, err
	}
	defer releaseSeries(values)
	var gain, loss float64
	for i := 1; i < len(values); i++ {
		if d := values[i] - values[i-1]; d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100, nil
	}
	rs := gain / loss
	return 100 - 100/(1+rs), nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
