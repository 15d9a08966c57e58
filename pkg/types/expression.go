// Package types defines the core data model of the Gondola engine.
//
// This package contains type definitions for:
//   - Type: value kinds and the boolean truth convention
//   - Node: expression tree nodes and the structural tree algorithms
//   - Variables: the variable store read and written by expressions
//   - ParseMetadata: node to token to line mapping for diagnostics
//   - Expression: a parsed tree together with its source and metadata
//   - QuoteSource: the read interface to daily quote data
//   - Error types: Structured errors with codes
package types

// Expression is a parsed Gondola formula.
//
// An Expression can be evaluated many times against different symbols,
// days and variable stores. It is safe for concurrent evaluation by
// multiple goroutines as long as each one brings its own Variables.
type Expression struct {
	root   *Node
	source string
	meta   *ParseMetadata
}

// NewExpression creates a new Expression from a tree.
func NewExpression(root *Node, source string, meta *ParseMetadata) *Expression {
	return &Expression{
		root:   root,
		source: source,
		meta:   meta,
	}
}

// Root returns the root node of the tree.
func (e *Expression) Root() *Node {
	return e.root
}

// SetRoot replaces the root node, e.g. with the result of a rewriting
// pass.
func (e *Expression) SetRoot(root *Node) {
	e.root = root
}

// Source returns the original source code of the expression.
func (e *Expression) Source() string {
	return e.source
}

// Metadata returns the parse metadata, possibly nil.
func (e *Expression) Metadata() *ParseMetadata {
	return e.meta
}

// Type returns the resolved type of the root.
func (e *Expression) Type() Type {
	if e.root == nil {
		return Undefined
	}
	return e.root.Type()
}

// Checked reports whether the tree went through the type checker.
func (e *Expression) Checked() bool {
	return e.Type() != Undefined
}

// Line returns the source line node was parsed from, or 0.
func (e *Expression) Line(node *Node) int {
	return e.meta.Line(node)
}

// Clone returns a deep copy of the expression with its own tree and
// metadata.
func (e *Expression) Clone() *Expression {
	if e.root == nil {
		return &Expression{source: e.source}
	}
	root, mapping := e.root.CloneWithMap()
	return &Expression{
		root:   root,
		source: e.source,
		meta:   e.meta.Remap(mapping),
	}
}

// String returns a string representation of the expression.
func (e *Expression) String() string {
	return e.source
}
