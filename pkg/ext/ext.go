// Package ext provides optional extension functions for Gondola that go
// beyond the builtin indicator set.
//
// The extension functions live in sub-packages grouped by category:
//   - extmath: sin, cos, tan, atan, atan2, pow, log10, clamp, sign,
//     trunc, round, floor, ceil, pi
//   - extwasm: functions exported by a WebAssembly module
//
// Custom functions must be known both when a formula is compiled and when
// it is evaluated.
//
// # Integration: all pure-Go extensions at once
//
//	import "github.com/sandrolain/gondola/pkg/ext"
//
//	expr, err := gondola.Compile("round(close) % 2 == 0",
//	    gondola.WithFunctions(ext.All()...))
//	ev := evaluator.New(ext.WithAll())
//
// # Integration: single function from a sub-package
//
//	import "github.com/sandrolain/gondola/pkg/ext/extmath"
//
//	expr, err := gondola.Compile("pow(close, 2)",
//	    gondola.WithFunctions(extmath.Pow()))
package ext

import (
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/ext/extmath"
	"github.com/sandrolain/gondola/pkg/functions"
)

// All returns every pure-Go extension function definition.
func All() []functions.Definition {
	var all []functions.Definition
	all = append(all, extmath.All()...)
	return all
}

// Registry returns a registry holding All plus extra, in that order: an
// extra definition replaces a bundled one of the same name.
func Registry(extra ...functions.Definition) (*functions.Registry, error) {
	return functions.NewRegistry(append(All(), extra...)...)
}

// WithAll returns an EvalOption that registers all pure-Go extension
// functions.
func WithAll() evaluator.EvalOption {
	return evaluator.WithFunctions(All()...)
}

// WithMath returns an EvalOption for the extended math functions.
func WithMath() evaluator.EvalOption {
	return evaluator.WithFunctions(extmath.All()...)
}
