// Package wire holds the JSON forms of Gondola requests shared by the
// HTTP server and the WebAssembly entrypoints.
//
// A self-contained evaluation carries its own bars:
//
//	{
//	  "formula": "close > avg(close, 3)",
//	  "symbol": "ACME",
//	  "bars": [{"date": "2024-01-02", "open": 9.5, "high": 10.2,
//	            "low": 9.4, "close": 10, "volume": 1000}, ...]
//	}
package wire

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vjeantet/jodaTime"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/types"
)

// DefaultDateLayout is the Joda layout of Bar.Date.
const DefaultDateLayout = "yyyy-MM-dd"

// ErrInvalid marks malformed requests.
var ErrInvalid = errors.New("invalid request")

// VariableDecl declares a variable of a request.
type VariableDecl struct {
	Name  string  `json:"name" binding:"required"`
	Type  string  `json:"type" binding:"required"` // int, float or boolean
	Value float64 `json:"value"`
	Const bool    `json:"const"`
}

// Variables builds the store declared by decls.
func Variables(decls []VariableDecl) (*types.Variables, error) {
	vars := types.NewVariables()
	for _, d := range decls {
		t, ok := types.ParseType(d.Type)
		if !ok {
			return nil, errors.Wrapf(ErrInvalid, "variable %s: unknown type %q", d.Name, d.Type)
		}
		var err error
		if d.Const {
			err = vars.AddConstant(d.Name, t, d.Value)
		} else {
			err = vars.Add(d.Name, t, d.Value)
		}
		if err != nil {
			return nil, errors.Wrap(ErrInvalid, err.Error())
		}
	}
	return vars, nil
}

// Bar is the JSON form of a quote.Bar.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Bars converts bars, parsing dates with the Joda layout.
func Bars(bars []Bar, layout string) ([]quote.Bar, error) {
	if layout == "" {
		layout = DefaultDateLayout
	}
	out := make([]quote.Bar, len(bars))
	for i, b := range bars {
		out[i] = quote.Bar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
		if b.Date == "" {
			continue
		}
		t, err := jodaTime.Parse(layout, b.Date)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "bar %d: date %q does not match %s", i, b.Date, layout)
		}
		out[i].Date = t
	}
	return out, nil
}

// Request is a self-contained evaluation.
type Request struct {
	Formula   string         `json:"formula"`
	Variables []VariableDecl `json:"variables,omitempty"`
	Symbol    string         `json:"symbol,omitempty"`
	Bars      []Bar          `json:"bars,omitempty"`
	// Day is the evaluation day; nil selects the last bar and negative
	// values count from the end.
	Day        *int   `json:"day,omitempty"`
	DateLayout string `json:"date_layout,omitempty"`
}

// Response is the outcome of a Request.
type Response struct {
	Value float64 `json:"value"`
	Type  string  `json:"type,omitempty"`
	Truth bool    `json:"truth"`
	Day   int     `json:"day"`
	Error string  `json:"error,omitempty"`
	Code  string  `json:"code,omitempty"`
}

// Failed builds the response of err.
func Failed(err error) Response {
	resp := Response{Error: err.Error()}
	if ge, ok := types.AsError(err); ok {
		resp.Code = string(ge.Code)
	}
	return resp
}

// Evaluate compiles and evaluates req. Errors are reported in the
// response.
func Evaluate(ctx context.Context, req Request, reg *functions.Registry) Response {
	vars, err := Variables(req.Variables)
	if err != nil {
		return Failed(err)
	}
	bars, err := Bars(req.Bars, req.DateLayout)
	if err != nil {
		return Failed(err)
	}
	symbol := types.Symbol(req.Symbol)
	if symbol == "" {
		symbol = "_"
	}
	src := quote.NewMemory()
	if err := src.Set(symbol, bars); err != nil {
		return Failed(errors.Wrap(ErrInvalid, err.Error()))
	}

	expr, err := gondola.Compile(req.Formula, gondola.WithVariables(vars), gondola.WithRegistry(reg))
	if err != nil {
		return Failed(err)
	}

	day := len(bars) - 1
	switch {
	case req.Day == nil:
	case *req.Day < 0:
		day = len(bars) + *req.Day
	default:
		day = *req.Day
	}
	if day < 0 {
		day = 0
	}

	ev := evaluator.New(evaluator.WithRegistry(reg))
	v, err := ev.Eval(ctx, expr, evaluator.Env{Variables: vars, Quotes: src, Symbol: symbol, Day: day})
	if err != nil {
		resp := Failed(err)
		resp.Day = day
		return resp
	}
	return Response{
		Value: v,
		Type:  expr.Type().String(),
		Truth: types.IsTrue(v),
		Day:   day,
	}
}
