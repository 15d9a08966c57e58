package ext_test

import (
	"context"
	"math"
	"testing"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/ext"
	"github.com/sandrolain/gondola/pkg/types"
)

func eval(t *testing.T, source string, opts ...evaluator.EvalOption) float64 {
	t.Helper()
	expr, err := gondola.Compile(source, gondola.WithFunctions(ext.All()...))
	if err != nil {
		t.Fatalf("Compile(%q) error: %v", source, err)
	}
	v, err := evaluator.New(opts...).Eval(context.Background(), expr, evaluator.Env{})
	if err != nil {
		t.Fatalf("Eval(%q) error: %v", source, err)
	}
	return v
}

// ── WithAll ────────────────────────────────────────────────────────────────

func TestWithAll_MathFunctions(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{`pow(2, 8)`, 256},
		{`round(2.5) % 2 == 1`, 1},
		{`sign(-4) * 3`, -3},
		{`clamp(150, 0, 100)`, 100},
		{`floor(7 / 2.0)`, 3},
		{`log10(100) + ceil(0.2)`, 3},
		{`sin(pi() / 2)`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := eval(t, tt.expr, ext.WithAll())
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithMath(t *testing.T) {
	if got := eval(t, `trunc(-3.9)`, ext.WithMath()); got != -3 {
		t.Errorf("got %v, want -3", got)
	}
}

func TestResultTypeChecked(t *testing.T) {
	typ, err := gondola.Check(`round(close)`, gondola.WithFunctions(ext.All()...))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if typ != types.Integer {
		t.Errorf("type = %s, want Integer", typ)
	}
}

func TestUnregisteredAtEvaluation(t *testing.T) {
	expr, err := gondola.Compile(`pow(2, 2)`, gondola.WithFunctions(ext.All()...))
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	_, err = evaluator.New().Eval(context.Background(), expr, evaluator.Env{})
	if !types.IsEvaluationFailure(err) {
		t.Fatalf("expected evaluation failure, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r, err := ext.Registry()
	if err != nil {
		t.Fatalf("Registry error: %v", err)
	}
	if r.Len() != len(ext.All()) {
		t.Errorf("Len = %d, want %d", r.Len(), len(ext.All()))
	}
	if _, ok := r.Lookup("atan2"); !ok {
		t.Error("atan2 not registered")
	}
	if _, ok := r.Lookup("log"); ok {
		t.Error("log must stay a builtin")
	}
}
