// Package extmath provides extended numeric functions for Gondola.
//
// None of these functions shadow a builtin: abs, sqrt, log, exp, min and
// max stay the engine's own. Results that are not finite are reported by
// the evaluator as evaluation failures.
package extmath

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

// All returns all extended numeric function definitions.
func All() []functions.Definition {
	return []functions.Definition{
		Sin(),
		Cos(),
		Tan(),
		Atan(),
		Atan2(),
		Pow(),
		Log10(),
		Clamp(),
		Sign(),
		Trunc(),
		Round(),
		Floor(),
		Ceil(),
		Pi(),
	}
}

// Sin returns the definition for sin(x).
func Sin() functions.Definition {
	return mathFunc1("sin", math.Sin)
}

// Cos returns the definition for cos(x).
func Cos() functions.Definition {
	return mathFunc1("cos", math.Cos)
}

// Tan returns the definition for tan(x).
func Tan() functions.Definition {
	return mathFunc1("tan", math.Tan)
}

// Atan returns the definition for atan(x).
func Atan() functions.Definition {
	return mathFunc1("atan", math.Atan)
}

// Atan2 returns the definition for atan2(y, x).
func Atan2() functions.Definition {
	return mathFunc2("atan2", math.Atan2)
}

// Pow returns the definition for pow(x, y).
func Pow() functions.Definition {
	return mathFunc2("pow", math.Pow)
}

// Log10 returns the definition for log10(x).
func Log10() functions.Definition {
	return functions.Definition{
		Name:   "log10",
		Params: []types.Type{types.Numeric},
		Result: types.Float,
		Fn: func(_ context.Context, args ...float64) (float64, error) {
			if args[0] <= 0 {
				return 0, errors.Errorf("log10 of non-positive number %v", args[0])
			}
			return math.Log10(args[0]), nil
		},
	}
}

// Clamp returns the definition for clamp(x, lo, hi).
func Clamp() functions.Definition {
	return functions.Definition{
		Name:   "clamp",
		Params: []types.Type{types.Numeric, types.Numeric, types.Numeric},
		Result: types.Float,
		Fn: func(_ context.Context, args ...float64) (float64, error) {
			x, lo, hi := args[0], args[1], args[2]
			if lo > hi {
				return 0, errors.Errorf("clamp: lower bound %v above upper bound %v", lo, hi)
			}
			return math.Min(math.Max(x, lo), hi), nil
		},
	}
}

// Sign returns the definition for sign(x): -1, 0 or 1.
func Sign() functions.Definition {
	return functions.Definition{
		Name:   "sign",
		Params: []types.Type{types.Numeric},
		Result: types.Integer,
		Fn: func(_ context.Context, args ...float64) (float64, error) {
			switch n := args[0]; {
			case n < 0:
				return -1, nil
			case n > 0:
				return 1, nil
			default:
				return 0, nil
			}
		},
	}
}

// Trunc returns the definition for trunc(x).
// Truncates toward zero.
func Trunc() functions.Definition {
	return intFunc1("trunc", math.Trunc)
}

// Round returns the definition for round(x).
// Halves round away from zero.
func Round() functions.Definition {
	return intFunc1("round", math.Round)
}

// Floor returns the definition for floor(x).
func Floor() functions.Definition {
	return intFunc1("floor", math.Floor)
}

// Ceil returns the definition for ceil(x).
func Ceil() functions.Definition {
	return intFunc1("ceil", math.Ceil)
}

// Pi returns the definition for pi().
func Pi() functions.Definition {
	return functions.Definition{
		Name:   "pi",
		Result: types.Float,
		Fn: func(_ context.Context, _ ...float64) (float64, error) {
			return math.Pi, nil
		},
	}
}

// ── helpers ────────────────────────────────────────────────────────────────

func mathFunc1(name string, fn func(float64) float64) functions.Definition {
	return functions.Definition{
		Name:   name,
		Params: []types.Type{types.Numeric},
		Result: types.Float,
		Fn: func(_ context.Context, args ...float64) (float64, error) {
			return fn(args[0]), nil
		},
	}
}

func mathFunc2(name string, fn func(float64, float64) float64) functions.Definition {
	return functions.Definition{
		Name:   name,
		Params: []types.Type{types.Numeric, types.Numeric},
		Result: types.Float,
		Fn: func(_ context.Context, args ...float64) (float64, error) {
			return fn(args[0], args[1]), nil
		},
	}
}

// intFunc1 wraps a rounding function whose result is integral.
func intFunc1(name string, fn func(float64) float64) functions.Definition {
	def := mathFunc1(name, fn)
	def.Result = types.Integer
	return def
}
