package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"math"
	"strconv"
	"strings"
)

// NodeKind identifies the variant of an expression node.
type NodeKind uint8

// Expression node variants.
const (
	KindInvalid NodeKind = iota

	// Terminals
	KindConstant // numeric or boolean literal
	KindString   // string literal
	KindVariable // variable reference
	KindQuote    // quote field of the current day

	// Operators
	KindUnary  // not, negation
	KindBinary // arithmetic, comparison, logic
	KindIf     // if/else and ?:

	// Statements
	KindAssign   // x = e
	KindDefine   // int x = e
	KindSequence // a; b
	KindFor      // for (init; cond; step) { body }

	// Functions
	KindCall
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindConstant: "constant",
	KindString:   "string",
	KindVariable: "variable",
	KindQuote:    "quote",
	KindUnary:    "unary",
	KindBinary:   "binary",
	KindIf:       "if",
	KindAssign:   "assign",
	KindDefine:   "define",
	KindSequence: "sequence",
	KindFor:      "for",
	KindCall:     "call",
}

// String returns the name of the node kind.
func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Arity returns the fixed number of children of a kind, or -1 for calls,
// whose arity depends on the function.
func (k NodeKind) Arity() int {
	switch k {
	case KindConstant, KindString, KindVariable, KindQuote:
		return 0
	case KindUnary, KindAssign, KindDefine:
		return 1
	case KindBinary, KindSequence:
		return 2
	case KindIf:
		return 3
	case KindFor:
		return 4
	}
	return -1
}

// Op identifies a unary or binary operator.
type Op uint8

// Operators.
const (
	OpNone Op = iota
	OpNot
	OpNegate
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var opSymbols = [...]string{
	OpNone:   "",
	OpNot:    "not",
	OpNegate: "-",
	OpAdd:    "+",
	OpSub:    "-",
	OpMul:    "*",
	OpDiv:    "/",
	OpMod:    "%",
	OpEq:     "==",
	OpNe:     "!=",
	OpLt:     "<",
	OpLe:     "<=",
	OpGt:     ">",
	OpGe:     ">=",
	OpAnd:    "and",
	OpOr:     "or",
}

// String returns the source symbol of the operator.
func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return "?"
}

// IsArithmetic reports whether o is +, -, *, / or %.
func (o Op) IsArithmetic() bool {
	return o >= OpAdd && o <= OpMod
}

// IsComparison reports whether o compares two numbers.
func (o Op) IsComparison() bool {
	return o >= OpEq && o <= OpGe
}

// IsLogical reports whether o is and/or.
func (o Op) IsLogical() bool {
	return o == OpAnd || o == OpOr
}

// Signature describes the operand and result types of a custom function.
type Signature struct {
	Params []Type
	Result Type
}

// String renders the signature as "(float, integer) float".
func (s *Signature) String() string {
	if s == nil {
		return "()"
	}
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ") " + s.Result.String()
}

// Node is a node of a Gondola expression tree.
//
// A node owns its children: each child has exactly one parent and
// cannot be attached elsewhere without being cloned first. The number of
// children is fixed when the node is created.
type Node struct {
	Kind  NodeKind
	Op    Op         // KindUnary, KindBinary
	Func  Func       // KindCall
	Field QuoteField // KindQuote
	Value float64    // KindConstant
	Text  string     // string literal, variable or custom function name

	// Decl is the declared type of constants, variable references and
	// assignment targets.
	Decl Type
	// Constant marks assignments and definitions targeting a constant.
	Constant bool
	// Sig is set on custom function calls.
	Sig *Signature

	// ID is an optional identifier assigned by the parser.
	ID int

	parent   *Node
	children []*Node
	typ      Type
}

// Errors returned by SetChild.
var (
	ErrChildIndex    = errors.New("child index out of range")
	ErrNilChild      = errors.New("nil child")
	ErrChildAttached = errors.New("child already has a parent")
)

// NewNode creates a node of the given kind owning children.
// It panics if a child is nil or already attached to another node.
func NewNode(kind NodeKind, children ...*Node) *Node {
	n := &Node{Kind: kind}
	n.adopt(children)
	return n
}

// NewPartial creates a node whose arity child slots are still empty.
// Parsers fill the slots with SetChild; ValidTree reports false until
// every slot is set.
func NewPartial(kind NodeKind, arity int) *Node {
	return &Node{Kind: kind, children: make([]*Node, arity)}
}

func (n *Node) adopt(children []*Node) {
	n.children = make([]*Node, len(children))
	for i, c := range children {
		if c == nil {
			panic("types: nil child passed to " + n.Kind.String())
		}
		if c.parent != nil {
			panic("types: child already attached; clone it first")
		}
		c.parent = n
		n.children[i] = c
	}
}

// NewConstant creates a literal of type t (Boolean, Integer or Float).
func NewConstant(t Type, value float64) *Node {
	return &Node{Kind: KindConstant, Decl: t, Value: value}
}

// NewBoolean creates a boolean literal.
func NewBoolean(b bool) *Node {
	return NewConstant(Boolean, FromBool(b))
}

// NewInteger creates an integer literal.
func NewInteger(v int64) *Node {
	return NewConstant(Integer, float64(v))
}

// NewFloat creates a float literal.
func NewFloat(v float64) *Node {
	return NewConstant(Float, v)
}

// NewString creates a string literal.
func NewString(s string) *Node {
	return &Node{Kind: KindString, Text: s}
}

// NewVariable creates a reference to a variable declared with type t.
func NewVariable(name string, t Type) *Node {
	return &Node{Kind: KindVariable, Text: name, Decl: t}
}

// NewQuote creates a reference to field on the evaluation day.
func NewQuote(field QuoteField) *Node {
	return &Node{Kind: KindQuote, Field: field}
}

// NewUnary creates a unary operator node.
func NewUnary(op Op, operand *Node) *Node {
	n := NewNode(KindUnary, operand)
	n.Op = op
	return n
}

// NewBinary creates a binary operator node.
func NewBinary(op Op, left, right *Node) *Node {
	n := NewNode(KindBinary, left, right)
	n.Op = op
	return n
}

// NewIf creates a conditional evaluating only the selected branch.
func NewIf(cond, then, els *Node) *Node {
	return NewNode(KindIf, cond, then, els)
}

// NewAssign creates an assignment to an existing variable.
func NewAssign(name string, t Type, constant bool, value *Node) *Node {
	n := NewNode(KindAssign, value)
	n.Text, n.Decl, n.Constant = name, t, constant
	return n
}

// NewDefine creates a variable definition.
func NewDefine(name string, t Type, constant bool, value *Node) *Node {
	n := NewNode(KindDefine, value)
	n.Text, n.Decl, n.Constant = name, t, constant
	return n
}

// NewSequence creates "first; second".
func NewSequence(first, second *Node) *Node {
	return NewNode(KindSequence, first, second)
}

// NewFor creates a for loop.
func NewFor(init, cond, step, body *Node) *Node {
	return NewNode(KindFor, init, cond, step, body)
}

// NewCall creates a call to a builtin function.
func NewCall(fn Func, args ...*Node) *Node {
	n := NewNode(KindCall, args...)
	n.Func = fn
	return n
}

// NewCustomCall creates a call to a registered custom function.
func NewCustomCall(name string, sig *Signature, args ...*Node) *Node {
	n := NewNode(KindCall, args...)
	n.Func = FuncCustom
	n.Text = name
	n.Sig = sig
	return n
}

// Arity returns the number of child slots.
func (n *Node) Arity() int {
	return len(n.children)
}

// Child returns the i-th child, or nil when i is out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Children returns a copy of the child slots.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// SetChild replaces the i-th child with c and returns the previous one,
// detached from n. c must not be attached to another node.
func (n *Node) SetChild(c *Node, i int) (*Node, error) {
	if i < 0 || i >= len(n.children) {
		return nil, fmt.Errorf("%w: %d of %d in %s", ErrChildIndex, i, len(n.children), n.Kind)
	}
	if c == nil {
		return nil, ErrNilChild
	}
	old := n.children[i]
	if old == c {
		return old, nil
	}
	if c.parent != nil {
		return nil, ErrChildAttached
	}
	if old != nil {
		old.parent = nil
	}
	c.parent = n
	n.children[i] = c
	return old, nil
}

// Index returns the position of c among n's children, comparing by
// identity, or -1.
func (n *Node) Index(c *Node) int {
	for i, child := range n.children {
		if child == c {
			return i
		}
	}
	return -1
}

// Parent returns the parent node, nil at the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Root walks the parent links up to the root.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Detach removes n from its parent's child slot. The slot is left empty.
func (n *Node) Detach() {
	if p := n.parent; p != nil {
		if i := p.Index(n); i >= 0 {
			p.children[i] = nil
		}
		n.parent = nil
	}
}

// Type returns the type resolved by the checker, or Undefined.
func (n *Node) Type() Type {
	return n.typ
}

// SetType records the resolved type. It is meant for the checker and
// rewriting passes.
func (n *Node) SetType(t Type) {
	n.typ = t
}

// IsConstant reports whether n is a literal.
func (n *Node) IsConstant() bool {
	return n.Kind == KindConstant
}

// ValidTree reports whether every child slot in the tree is filled.
func (n *Node) ValidTree() bool {
	valid := true
	n.Walk(func(node *Node) bool {
		for _, c := range node.children {
			if c == nil {
				valid = false
			}
		}
		return valid
	})
	return valid
}

// Size returns the number of nodes in the tree rooted at n.
func (n *Node) Size() int {
	size := 1
	for _, c := range n.children {
		if c != nil {
			size += c.Size()
		}
	}
	return size
}

// SizeOf returns the number of nodes in the tree whose resolved type is t.
func (n *Node) SizeOf(t Type) int {
	size := 0
	for node := range n.All() {
		if node.typ == t {
			size++
		}
	}
	return size
}

// All returns a pre-order sequence over n and its descendants. Each call
// starts a fresh traversal. The tree must not be modified while ranging.
func (n *Node) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walk(yield)
	}
}

// Walk calls fn for n and its descendants in pre-order. When fn returns
// false the children of that node are skipped.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

func (n *Node) walk(yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	for _, c := range n.children {
		if c != nil && !c.walk(yield) {
			return false
		}
	}
	return true
}

// Equal reports whether n and o are structurally equal: same variant,
// same payload and pairwise equal children. Resolved types and parent
// links are ignored.
func (n *Node) Equal(o *Node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	if !n.samePayload(o) || len(n.children) != len(o.children) {
		return false
	}
	for i, c := range n.children {
		if !c.Equal(o.children[i]) {
			return false
		}
	}
	return true
}

func (n *Node) samePayload(o *Node) bool {
	return n.Kind == o.Kind &&
		n.Op == o.Op &&
		n.Func == o.Func &&
		n.Field == o.Field &&
		n.Decl == o.Decl &&
		n.Constant == o.Constant &&
		math.Float64bits(n.Value) == math.Float64bits(o.Value) &&
		n.Text == o.Text
}

// Hash returns a hash consistent with Equal.
func (n *Node) Hash() uint64 {
	if n == nil {
		return 0
	}
	h := fnv.New64a()
	var buf [8]byte
	buf[0] = byte(n.Kind)
	buf[1] = byte(n.Op)
	buf[2] = byte(n.Func)
	buf[3] = byte(n.Field)
	buf[4] = byte(n.Decl)
	if n.Constant {
		buf[5] = 1
	}
	_, _ = h.Write(buf[:6])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.Value))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(n.Text))

	sum := h.Sum64()
	for _, c := range n.children {
		sum = sum*31 + c.Hash()
	}
	return sum
}

// Clone returns a deep copy of the tree rooted at n. The copy is a new
// root: its parent link is nil and no node is shared with n.
func (n *Node) Clone() *Node {
	c, _ := n.CloneWithMap()
	return c
}

// CloneWithMap is like Clone and also returns the mapping from every
// original node to its copy.
func (n *Node) CloneWithMap() (*Node, map[*Node]*Node) {
	m := make(map[*Node]*Node)
	return n.clone(m), m
}

func (n *Node) clone(m map[*Node]*Node) *Node {
	c := *n
	c.parent = nil
	if n.Sig != nil {
		sig := *n.Sig
		sig.Params = append([]Type(nil), n.Sig.Params...)
		c.Sig = &sig
	}
	c.children = make([]*Node, len(n.children))
	for i, child := range n.children {
		if child == nil {
			continue
		}
		cc := child.clone(m)
		cc.parent = &c
		c.children[i] = cc
	}
	m[n] = &c
	return &c
}

// String renders the tree as Gondola source.
func (n *Node) String() string {
	var b strings.Builder
	n.format(&b)
	return b.String()
}

func (n *Node) format(b *strings.Builder) {
	if n == nil {
		b.WriteString("<nil>")
		return
	}
	switch n.Kind {
	case KindConstant:
		b.WriteString(FormatConstant(n.Decl, n.Value))
	case KindString:
		b.WriteString(strconv.Quote(n.Text))
	case KindVariable:
		b.WriteString(n.Text)
	case KindQuote:
		b.WriteString(n.Field.String())
	case KindUnary:
		b.WriteString(n.Op.String())
		if n.Op == OpNot {
			b.WriteByte(' ')
		}
		n.formatOperand(b, n.Child(0))
	case KindBinary:
		n.formatOperand(b, n.Child(0))
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		n.formatOperand(b, n.Child(1))
	case KindIf:
		b.WriteString("if (")
		n.Child(0).format(b)
		b.WriteString(") { ")
		n.Child(1).format(b)
		b.WriteString(" } else { ")
		n.Child(2).format(b)
		b.WriteString(" }")
	case KindAssign, KindDefine:
		if n.Kind == KindDefine {
			if n.Constant {
				b.WriteString("const ")
			}
			b.WriteString(declKeyword(n.Decl))
			b.WriteByte(' ')
		}
		b.WriteString(n.Text)
		b.WriteString(" = ")
		n.Child(0).format(b)
	case KindSequence:
		n.Child(0).format(b)
		b.WriteString("; ")
		n.Child(1).format(b)
	case KindFor:
		b.WriteString("for (")
		n.Child(0).format(b)
		b.WriteString("; ")
		n.Child(1).format(b)
		b.WriteString("; ")
		n.Child(2).format(b)
		b.WriteString(") { ")
		n.Child(3).format(b)
		b.WriteString(" }")
	case KindCall:
		if n.Func == FuncCustom {
			b.WriteString(n.Text)
		} else {
			b.WriteString(n.Func.String())
		}
		b.WriteByte('(')
		for i, c := range n.children {
			if i > 0 {
				b.WriteString(", ")
			}
			c.format(b)
		}
		b.WriteByte(')')
	default:
		b.WriteString("<invalid>")
	}
}

func (n *Node) formatOperand(b *strings.Builder, c *Node) {
	if c != nil && (c.Kind == KindBinary || c.Kind == KindAssign || c.Kind == KindSequence) {
		b.WriteByte('(')
		c.format(b)
		b.WriteByte(')')
		return
	}
	c.format(b)
}

func declKeyword(t Type) string {
	switch t {
	case Boolean:
		return "boolean"
	case Integer:
		return "int"
	default:
		return "float"
	}
}

// FormatConstant renders a literal of type t so that parsing it back
// yields the same type.
func FormatConstant(t Type, v float64) string {
	switch t {
	case Boolean:
		if IsTrue(v) {
			return "true"
		}
		return "false"
	case Integer, ShortInteger:
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// arenaChunkSize is the number of Node values pre-allocated per arena chunk.
const arenaChunkSize = 64

// NodeArena is a bump-pointer allocator for Node values.
//
// Instead of allocating each node individually on the heap, the arena
// pre-allocates fixed-size chunks of Node structs and returns pointers
// into them. A typical formula fits in a single chunk.
//
// The arena MUST stay alive as long as any pointer returned by Alloc is
// reachable; the nodes themselves keep their chunk alive, so dropping the
// arena after parsing is fine.
//
// NodeArena is NOT thread-safe. Each parser owns its own arena.
type NodeArena struct {
	chunks [][]Node
	pos    int // next free index in the last chunk
}

// NewNodeArena allocates an arena pre-warmed with one initial chunk.
func NewNodeArena() *NodeArena {
	return &NodeArena{
		chunks: [][]Node{make([]Node, arenaChunkSize)},
	}
}

// Alloc returns a node of the given kind with arity empty child slots.
func (a *NodeArena) Alloc(kind NodeKind, arity int) *Node {
	if a.pos >= arenaChunkSize {
		a.chunks = append(a.chunks, make([]Node, arenaChunkSize))
		a.pos = 0
	}
	n := &a.chunks[len(a.chunks)-1][a.pos]
	a.pos++
	n.Kind = kind
	if arity > 0 {
		n.children = make([]*Node, arity)
	}
	return n
}

// Len returns the number of nodes handed out so far.
func (a *NodeArena) Len() int {
	return (len(a.chunks)-1)*arenaChunkSize + a.pos
}
