package scan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandrolain/gondola/pkg/checker"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/parser"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/scan"
	"github.com/sandrolain/gondola/pkg/types"
)

func testQuotes(t *testing.T) *quote.Memory {
	t.Helper()
	src := quote.NewMemory()
	series := map[types.Symbol][]float64{
		"ACME": {10, 11, 10.5, 12, 13},
		"BCDE": {20, 19, 21, 22},
	}
	for symbol, closes := range series {
		bars := make([]quote.Bar, len(closes))
		for i, c := range closes {
			bars[i] = quote.Bar{
				Date:   time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC),
				Open:   c,
				High:   c + 1,
				Low:    c - 1,
				Close:  c,
				Volume: 100,
			}
		}
		if err := src.Set(symbol, bars); err != nil {
			t.Fatal(err)
		}
	}
	return src
}

func compile(t *testing.T, source string, vars *types.Variables) *types.Expression {
	t.Helper()
	expr, err := parser.Parse(source, parser.WithVariables(vars))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := checker.CheckExpression(expr); err != nil {
		t.Fatal(err)
	}
	return expr
}

type point struct {
	symbol types.Symbol
	day    int
}

func points(res *scan.Result) []point {
	out := make([]point, len(res.Points))
	for i, p := range res.Points {
		out[i] = point{p.Symbol, p.Day}
	}
	return out
}

func samePoints(t *testing.T, got, want []point) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("points = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("points = %v, want %v", got, want)
		}
	}
}

func TestScanMatches(t *testing.T) {
	vars := types.NewVariables()
	expr := compile(t, "close > close(-1)", vars)
	sc := scan.New(evaluator.New(), scan.WithWorkers(3))

	res, err := sc.Run(context.Background(), expr, testQuotes(t), vars, scan.Request{MatchesOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	samePoints(t, points(res), []point{{"ACME", 1}, {"ACME", 3}, {"ACME", 4}, {"BCDE", 2}, {"BCDE", 3}})
	if res.Symbols != 2 || res.Skipped != 2 {
		t.Errorf("symbols = %d, skipped = %d", res.Symbols, res.Skipped)
	}
	if len(res.Failures) != 2 || res.Failures[0].Symbol != "ACME" || res.Failures[0].Code != types.ErrDayOutOfRange {
		t.Errorf("failures = %+v", res.Failures)
	}
	if res.Points[0].Date != "2024-01-03" || res.Points[0].Value != types.True {
		t.Errorf("first point = %+v", res.Points[0])
	}
}

func TestScanRanges(t *testing.T) {
	vars := types.NewVariables()
	expr := compile(t, "close", vars)
	src := testQuotes(t)
	sc := scan.New(nil)

	tests := []struct {
		name string
		req  scan.Request
		want []point
	}{
		{"last", scan.Request{Last: 2}, []point{{"ACME", 3}, {"ACME", 4}, {"BCDE", 2}, {"BCDE", 3}}},
		{"last longer than history", scan.Request{Symbols: []types.Symbol{"BCDE"}, Last: 10}, []point{{"BCDE", 0}, {"BCDE", 1}, {"BCDE", 2}, {"BCDE", 3}}},
		{"from end", scan.Request{Symbols: []types.Symbol{"ACME"}, From: -1}, []point{{"ACME", 4}}},
		{"window", scan.Request{Symbols: []types.Symbol{"ACME"}, From: 1, To: -3}, []point{{"ACME", 1}, {"ACME", 2}}},
		{"to past end", scan.Request{Symbols: []types.Symbol{"BCDE"}, From: 3, To: 9}, []point{{"BCDE", 3}}},
		{"unknown symbol", scan.Request{Symbols: []types.Symbol{"NONE"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sc.Run(context.Background(), expr, src, vars, tt.req)
			if err != nil {
				t.Fatal(err)
			}
			samePoints(t, points(res), tt.want)
		})
	}
}

func TestScanStatePerSymbol(t *testing.T) {
	vars := types.NewVariables()
	_ = vars.Add("seen", types.Integer, 0)
	expr := compile(t, "seen = seen + 1; seen", vars)

	for _, workers := range []int{1, 4} {
		res, err := scan.New(evaluator.New(), scan.WithWorkers(workers)).
			Run(context.Background(), expr, testQuotes(t), vars, scan.Request{})
		if err != nil {
			t.Fatal(err)
		}
		counts := map[types.Symbol]float64{}
		for _, p := range res.Points {
			counts[p.Symbol]++
			if p.Value != counts[p.Symbol] {
				t.Errorf("workers=%d: %s day %d saw %v, want %v", workers, p.Symbol, p.Day, p.Value, counts[p.Symbol])
			}
		}
	}
	if v, _ := vars.Value("seen"); v != 0 {
		t.Errorf("template store written: seen = %v", v)
	}
}

func TestScanOptions(t *testing.T) {
	vars := types.NewVariables()
	src := testQuotes(t)

	t.Run("date layout", func(t *testing.T) {
		res, err := scan.New(nil, scan.WithDateLayout("dd/MM/yyyy")).
			Run(context.Background(), compile(t, "close", vars), src, vars, scan.Request{Symbols: []types.Symbol{"ACME"}, Last: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Points) != 1 || res.Points[0].Date != "06/01/2024" {
			t.Errorf("points = %+v", res.Points)
		}
	})

	t.Run("max failures", func(t *testing.T) {
		res, err := scan.New(nil, scan.WithMaxFailures(1)).
			Run(context.Background(), compile(t, "avg(close, 3)", vars), src, vars, scan.Request{})
		if err != nil {
			t.Fatal(err)
		}
		if res.Skipped != 4 || len(res.Failures) != 1 {
			t.Errorf("skipped = %d, failures = %d", res.Skipped, len(res.Failures))
		}
	})

	t.Run("budget", func(t *testing.T) {
		res, err := scan.New(nil, scan.WithBudget(time.Nanosecond)).
			Run(context.Background(), compile(t, "close", vars), src, vars, scan.Request{})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Points) != 0 || res.Skipped != 9 {
			t.Errorf("points = %d, skipped = %d", len(res.Points), res.Skipped)
		}
		for _, f := range res.Failures {
			if f.Code != types.ErrEvaluationCancelled {
				t.Errorf("failure %+v", f)
			}
		}
	})
}

func TestScanErrors(t *testing.T) {
	vars := types.NewVariables()
	src := testQuotes(t)
	expr := compile(t, "close", vars)
	sc := scan.New(nil)

	unchecked, err := parser.Parse("close")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sc.Run(context.Background(), unchecked, src, vars, scan.Request{}); err == nil {
		t.Error("unchecked expression accepted")
	}
	if _, err := sc.Run(context.Background(), expr, nil, vars, scan.Request{}); err == nil {
		t.Error("nil source accepted")
	}
	if _, err := sc.Run(context.Background(), expr, single{}, vars, scan.Request{}); err == nil {
		t.Error("scan without symbols accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sc.Run(ctx, expr, src, vars, scan.Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled scan error = %v", err)
	}
}

// single is a source that cannot list its symbols.
type single struct{}

func (single) Quote(types.Symbol, int, types.QuoteField) (float64, error) { return 1, nil }
func (single) Days(types.Symbol) int                                      { return 1 }
