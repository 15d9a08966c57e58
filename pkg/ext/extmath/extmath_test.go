package extmath_test

import (
	"context"
	"math"
	"testing"

	"github.com/sandrolain/gondola/pkg/ext/extmath"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

func call(t *testing.T, def functions.Definition, args ...float64) float64 {
	t.Helper()
	if len(args) != len(def.Params) {
		t.Fatalf("%s: %d args for %d params", def.Name, len(args), len(def.Params))
	}
	v, err := def.Fn(context.Background(), args...)
	if err != nil {
		t.Fatalf("%s(%v) error: %v", def.Name, args, err)
	}
	return v
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name string
		def  functions.Definition
		args []float64
		want float64
	}{
		{"sin", extmath.Sin(), []float64{0}, 0},
		{"cos", extmath.Cos(), []float64{0}, 1},
		{"tan", extmath.Tan(), []float64{0}, 0},
		{"atan", extmath.Atan(), []float64{1}, math.Pi / 4},
		{"atan2", extmath.Atan2(), []float64{1, 1}, math.Pi / 4},
		{"pow", extmath.Pow(), []float64{2, 10}, 1024},
		{"log10", extmath.Log10(), []float64{1000}, 3},
		{"clamp below", extmath.Clamp(), []float64{-5, 0, 10}, 0},
		{"clamp inside", extmath.Clamp(), []float64{5, 0, 10}, 5},
		{"clamp above", extmath.Clamp(), []float64{15, 0, 10}, 10},
		{"sign negative", extmath.Sign(), []float64{-3.2}, -1},
		{"sign zero", extmath.Sign(), []float64{0}, 0},
		{"sign positive", extmath.Sign(), []float64{7}, 1},
		{"trunc", extmath.Trunc(), []float64{-2.7}, -2},
		{"round half", extmath.Round(), []float64{2.5}, 3},
		{"round negative half", extmath.Round(), []float64{-2.5}, -3},
		{"floor", extmath.Floor(), []float64{-2.1}, -3},
		{"ceil", extmath.Ceil(), []float64{2.1}, 3},
		{"pi", extmath.Pi(), nil, math.Pi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := call(t, tt.def, tt.args...)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFunctionErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := extmath.Log10().Fn(ctx, 0); err == nil {
		t.Error("log10(0) should fail")
	}
	if _, err := extmath.Clamp().Fn(ctx, 1, 10, 0); err == nil {
		t.Error("clamp with lo > hi should fail")
	}
}

func TestAllValid(t *testing.T) {
	seen := make(map[string]bool)
	for _, def := range extmath.All() {
		if err := def.Validate(); err != nil {
			t.Errorf("%s: %v", def.Name, err)
		}
		if seen[def.Name] {
			t.Errorf("duplicate definition %s", def.Name)
		}
		seen[def.Name] = true
	}
}

func TestResultTypes(t *testing.T) {
	for _, def := range []functions.Definition{extmath.Sign(), extmath.Trunc(), extmath.Round(), extmath.Floor(), extmath.Ceil()} {
		if def.Result != types.Integer {
			t.Errorf("%s result = %s, want Integer", def.Name, def.Result)
		}
	}
	for _, def := range []functions.Definition{extmath.Sin(), extmath.Pow(), extmath.Clamp(), extmath.Pi()} {
		if def.Result != types.Float {
			t.Errorf("%s result = %s, want Float", def.Name, def.Result)
		}
	}
}
