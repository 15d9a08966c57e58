package evaluator

// Package evaluator implements the Gondola expression evaluation engine.
//
// The evaluator walks a checked expression tree and computes its value
// for one (variables, quote source, symbol, day) point. It supports:
//   - Arithmetic, comparison and logic with short-circuiting and/or/if
//   - Quote field access and window functions over trading days
//   - Variable reads, assignments, definitions and for loops
//   - Custom functions registered with WithFunctions
//
// # Example
//
//	ev := evaluator.New()
//	v, err := ev.Eval(ctx, expr, evaluator.Env{
//	    Variables: vars,
//	    Quotes:    source,
//	    Symbol:    "ACME",
//	    Day:       120,
//	})
//
// # Concurrency
//
// An Evaluator and a checked Expression can be shared by many goroutines.
// The Variables of an Env are written by assignments, so every concurrent
// evaluation must use its own store (see types.Variables.Clone).

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

// Evaluator evaluates Gondola expressions.
type Evaluator struct {
	opts      EvalOptions
	logger    *slog.Logger
	functions *functions.Registry
}

// EvalOptions configures evaluator behavior.
type EvalOptions struct {
	// MaxDepth limits recursion depth. Zero disables the limit.
	MaxDepth int
	// MaxIterations limits the iterations of a single for loop. Zero
	// disables the limit.
	MaxIterations int
	// Debug enables per-node debug logging.
	Debug bool
	// Logger for structured logging.
	Logger *slog.Logger
	// Functions holds the custom functions calls are resolved against.
	Functions []functions.Definition
	// Registry is an existing registry; Functions are added to it.
	Registry *functions.Registry
}

// Env is the point an expression is evaluated at.
type Env struct {
	// Variables is read by variable references and written by
	// assignments. A nil store is replaced by an empty one.
	Variables *types.Variables
	Quotes    types.QuoteSource
	Symbol    types.Symbol
	// Day is the dense, zero based trading day index.
	Day int
}

// New creates a new Evaluator with default options.
func New(opts ...EvalOption) *Evaluator {
	options := EvalOptions{
		MaxDepth:      10000,
		MaxIterations: 1_000_000,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	registry := options.Registry
	if registry == nil {
		registry, _ = functions.NewRegistry()
	}
	for _, def := range options.Functions {
		if err := registry.Register(def); err != nil {
			options.Logger.Warn("skipping custom function", "name", def.Name, "error", err)
		}
	}

	return &Evaluator{
		opts:      options,
		logger:    options.Logger,
		functions: registry,
	}
}

// Functions returns the registry custom calls are resolved against.
func (e *Evaluator) Functions() *functions.Registry {
	return e.functions
}

// Eval evaluates a checked expression at env.
func (e *Evaluator) Eval(ctx context.Context, expr *types.Expression, env Env) (float64, error) {
	if expr == nil || expr.Root() == nil {
		return 0, fmt.Errorf("invalid expression")
	}
	v, err := e.EvalNode(ctx, expr.Root(), env)
	if err != nil {
		if ge, ok := types.AsError(err); ok && ge.Line == 0 && ge.Node != nil {
			ge.Line = expr.Line(ge.Node)
		}
		return 0, err
	}
	return v, nil
}

// EvalNode evaluates the checked subtree rooted at node.
func (e *Evaluator) EvalNode(ctx context.Context, node *types.Node, env Env) (float64, error) {
	if node == nil {
		return 0, fmt.Errorf("invalid expression")
	}
	if node.Type() == types.Undefined {
		return 0, types.Errorf(types.ErrNotChecked, "expression must be type checked before evaluation").
			WithNode(node).AtDay(env.Symbol, env.Day)
	}
	if env.Variables == nil {
		env.Variables = types.NewVariables()
	}
	st := acquireState(env)
	defer releaseState(st)
	return e.evalNode(ctx, node, st)
}

// EvalOption configures evaluation behavior.
type EvalOption func(*EvalOptions)

// WithDebug enables or disables debug logging.
func WithDebug(enabled bool) EvalOption {
	return func(opts *EvalOptions) {
		opts.Debug = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EvalOption {
	return func(opts *EvalOptions) {
		opts.Logger = logger
	}
}

// WithMaxDepth sets the maximum recursion depth.
func WithMaxDepth(depth int) EvalOption {
	return func(opts *EvalOptions) {
		opts.MaxDepth = depth
	}
}

// WithMaxIterations sets the maximum number of iterations of a loop.
func WithMaxIterations(n int) EvalOption {
	return func(opts *EvalOptions) {
		opts.MaxIterations = n
	}
}

// WithFunctions registers custom functions with the evaluator.
func WithFunctions(defs ...functions.Definition) EvalOption {
	return func(opts *EvalOptions) {
		opts.Functions = append(opts.Functions, defs...)
	}
}

// WithRegistry resolves custom calls against r.
func WithRegistry(r *functions.Registry) EvalOption {
	return func(opts *EvalOptions) {
		opts.Registry = r
	}
}
