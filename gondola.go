// Package gondola provides the Gondola technical-analysis expression engine.
//
// Gondola formulas describe indicators and screening rules over daily
// stock quotes:
//
//	avg(close, 20) > avg(close, 50) and volume > 1000000
//
// A formula is parsed into a typed expression tree, type checked once,
// simplified, and then evaluated day after day against a quote source.
//
// # Quick Start
//
//	// Compile once, evaluate many times
//	expr, err := gondola.Compile("close(0) > close(-1)")
//	ev := evaluator.New()
//	for day := 1; day < source.Days("ACME"); day++ {
//	    v, err := ev.Eval(ctx, expr, evaluator.Env{Quotes: source, Symbol: "ACME", Day: day})
//	    ...
//	}
//
//	// Declared variables and custom functions
//	vars := types.NewVariables()
//	_ = vars.Add("threshold", types.Float, 1.5)
//	expr, err := gondola.Compile("close / open > threshold",
//	    gondola.WithVariables(vars),
//	    gondola.WithCache(cache.New(128)),
//	)
//
// # Errors
//
// Every failure is a *types.Error. Use types.IsParseFailure,
// types.IsTypeMismatch and types.IsEvaluationFailure to tell the stages
// apart.
//
// # More Information
//
// For detailed documentation, see:
//   - Parser: github.com/sandrolain/gondola/pkg/parser
//   - Checker: github.com/sandrolain/gondola/pkg/checker
//   - Evaluator: github.com/sandrolain/gondola/pkg/evaluator
//   - Simplifier: github.com/sandrolain/gondola/pkg/simplifier
//   - Types: github.com/sandrolain/gondola/pkg/types
package gondola

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sandrolain/gondola/pkg/cache"
	"github.com/sandrolain/gondola/pkg/checker"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/parser"
	"github.com/sandrolain/gondola/pkg/simplifier"
	"github.com/sandrolain/gondola/pkg/types"
)

// Version returns the current version of Gondola.
func Version() string {
	return "v0.1.0-dev"
}

// Option configures compilation.
type Option func(*Options)

// Options holds compilation settings.
type Options struct {
	// Variables declares the variables a formula may use.
	Variables *types.Variables
	// Functions declares custom functions.
	Functions []functions.Definition
	// Registry declares every function it holds.
	Registry *functions.Registry
	// MaxDepth limits parser nesting. Zero uses the parser default.
	MaxDepth int
	// NoSimplify skips the simplification pass.
	NoSimplify bool
	// Cache stores compiled expressions by source and declarations.
	Cache *cache.Cache
}

// WithVariables declares the variables of vars.
func WithVariables(vars *types.Variables) Option {
	return func(o *Options) {
		o.Variables = vars
	}
}

// WithFunctions declares custom functions.
func WithFunctions(defs ...functions.Definition) Option {
	return func(o *Options) {
		o.Functions = append(o.Functions, defs...)
	}
}

// WithRegistry declares every function of r.
func WithRegistry(r *functions.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) Option {
	return func(o *Options) {
		o.MaxDepth = depth
	}
}

// WithSimplify enables or disables the simplification pass. It is
// enabled by default.
func WithSimplify(enabled bool) Option {
	return func(o *Options) {
		o.NoSimplify = !enabled
	}
}

// WithCache looks compiled expressions up in c before compiling.
func WithCache(c *cache.Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Compile parses, type checks and simplifies a formula.
//
// The compiled expression can be evaluated multiple times against
// different symbols and days. It is safe for concurrent evaluation as
// long as every goroutine uses its own variable store.
//
// Example:
//
//	expr, err := gondola.Compile("rsi(14) < 30")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Compile(source string, opts ...Option) (*types.Expression, error) {
	o := buildOptions(opts)
	if o.Cache == nil {
		return compile(source, o)
	}
	return o.Cache.GetOrCompile(cacheKey(source, o), func() (*types.Expression, error) {
		return compile(source, o)
	})
}

func cacheKey(source string, o Options) string {
	extra := make([]string, 0, len(o.Functions)+2)
	for _, def := range o.Functions {
		extra = append(extra, def.Name+def.Signature().String())
	}
	for _, name := range o.Registry.Names() {
		if def, ok := o.Registry.Lookup(name); ok {
			extra = append(extra, name+def.Signature().String())
		}
	}
	extra = append(extra, "simplify="+strconv.FormatBool(!o.NoSimplify))
	return cache.Key(source, o.Variables, extra...)
}

func compile(source string, o Options) (*types.Expression, error) {
	expr, err := parse(source, o)
	if err != nil {
		return nil, err
	}
	if _, err := checkRoot(expr); err != nil {
		return nil, err
	}
	if !o.NoSimplify {
		simplifier.SimplifyExpression(expr)
	}
	return expr, nil
}

func parse(source string, o Options) (*types.Expression, error) {
	popts := []parser.CompileOption{
		parser.WithVariables(o.Variables),
		parser.WithFunctions(o.Functions...),
		parser.WithRegistry(o.Registry),
	}
	if o.MaxDepth > 0 {
		popts = append(popts, parser.WithMaxDepth(o.MaxDepth))
	}
	return parser.Parse(source, popts...)
}

// checkRoot type checks expr and rejects formulas that do not produce a
// number or a truth value.
func checkRoot(expr *types.Expression) (types.Type, error) {
	t, err := checker.CheckExpression(expr)
	if err != nil {
		return types.Undefined, err
	}
	if t == types.String {
		root := expr.Root()
		return types.Undefined, types.Errorf(types.ErrInvalidRootType, "formula produces a string, not a number").
			WithNode(root).WithLine(expr.Line(root))
	}
	return t, nil
}

// MustCompile is like Compile but panics if the formula cannot be compiled.
// It simplifies safe initialization of global variables.
func MustCompile(source string, opts ...Option) *types.Expression {
	expr, err := Compile(source, opts...)
	if err != nil {
		panic(fmt.Sprintf("gondola: Compile(%q): %v", source, err))
	}
	return expr
}

// Check parses and type checks a formula without simplifying it and
// returns the type it produces.
func Check(source string, opts ...Option) (types.Type, error) {
	expr, err := parse(source, buildOptions(opts))
	if err != nil {
		return types.Undefined, err
	}
	return checkRoot(expr)
}

// Eval is a convenience function that compiles and evaluates a formula
// in a single call. Variables of env are declared to the parser unless
// WithVariables is given; custom functions given with WithFunctions are
// available to the evaluator.
//
// For repeated evaluations of the same formula, use Compile instead.
//
// Example:
//
//	v, err := gondola.Eval(ctx, "close - open", evaluator.Env{Quotes: src, Symbol: "ACME", Day: 3})
func Eval(ctx context.Context, source string, env evaluator.Env, opts ...Option) (float64, error) {
	o := buildOptions(opts)
	if o.Variables == nil {
		o.Variables = env.Variables
	}
	expr, err := Compile(source, func(dst *Options) { *dst = o })
	if err != nil {
		return 0, err
	}

	ev := evaluator.New(
		evaluator.WithRegistry(o.Registry),
		evaluator.WithFunctions(o.Functions...),
	)
	return ev.Eval(ctx, expr, env)
}
