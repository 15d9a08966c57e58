package parser

// Package parser implements the Gondola formula parser.
//
// The parser is a hand-written recursive descent parser driven by Pratt's
// operator precedence algorithm. It turns source text into an unchecked
// expression tree and records, for every node, the token and line it was
// built from so that later stages can report errors against the source.
//
// # Architecture
//
// The parser consists of two main components:
//   - Lexer: Tokenizes the input formula into a stream of tokens
//   - Parser: Builds the expression tree from tokens
//
// Identifiers are resolved while parsing: quote fields and builtin
// functions are known, variables come from WithVariables or from
// declarations inside the formula, custom functions from WithFunctions.
// Unknown names are parse failures.
//
// # Example
//
//	expr, err := parser.Parse("avg(close, 20) > close")
//	if err != nil {
//	    var ge *types.Error
//	    if errors.As(err, &ge) {
//	        fmt.Printf("parse error at line %d\n", ge.Line)
//	    }
//	    return
//	}
//	root := expr.Root()

import (
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

// DefaultMaxDepth is the nesting limit used when WithMaxDepth is not given.
const DefaultMaxDepth = 256

// Parse parses a Gondola formula and returns the unchecked Expression.
//
// The function tokenizes the input, builds the tree, and resolves every
// identifier. If parsing fails, it returns a *types.Error of the parse
// failure category carrying the position and line of the offending token.
//
// Example:
//
//	expr, err := parser.Parse("close > open")
//	if err != nil {
//	    return err
//	}
func Parse(formula string, opts ...CompileOption) (*types.Expression, error) {
	p := NewParser(formula, opts...)
	return p.Parse()
}

// Compile is Parse under the name the facade uses.
func Compile(formula string, opts ...CompileOption) (*types.Expression, error) {
	return Parse(formula, opts...)
}

// CompileOption configures compilation behavior.
type CompileOption func(*CompileOptions)

// CompileOptions holds parser configuration.
type CompileOptions struct {
	// MaxDepth limits nesting to prevent stack overflow.
	MaxDepth int
	// Variables declares the names a formula may read and assign, with
	// their types.
	Variables *types.Variables
	// Functions declares the custom functions a formula may call.
	Functions []functions.Definition
	// Registry is consulted for custom functions not in Functions.
	Registry *functions.Registry
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) CompileOption {
	return func(opts *CompileOptions) {
		opts.MaxDepth = depth
	}
}

// WithVariables declares the variables of vars. Only names and types are
// used; values are read at evaluation time.
func WithVariables(vars *types.Variables) CompileOption {
	return func(opts *CompileOptions) {
		opts.Variables = vars
	}
}

// WithFunctions declares custom functions.
func WithFunctions(defs ...functions.Definition) CompileOption {
	return func(opts *CompileOptions) {
		opts.Functions = append(opts.Functions, defs...)
	}
}

// WithRegistry declares every function of r.
func WithRegistry(r *functions.Registry) CompileOption {
	return func(opts *CompileOptions) {
		opts.Registry = r
	}
}
