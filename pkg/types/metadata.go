package types

// Token is the source token a node was parsed from.
type Token struct {
	Text   string
	Offset int
}

// ParseMetadata maps nodes to the tokens they came from and tokens to
// source lines. It is owned by an Expression and only consulted to build
// diagnostics.
type ParseMetadata struct {
	tokens []Token
	lines  []int
	nodes  map[*Node]int
}

// NewParseMetadata returns an empty table.
func NewParseMetadata() *ParseMetadata {
	return &ParseMetadata{nodes: make(map[*Node]int)}
}

// AddToken records a token found on line and returns its index.
func (m *ParseMetadata) AddToken(tok Token, line int) int {
	m.tokens = append(m.tokens, tok)
	m.lines = append(m.lines, line)
	return len(m.tokens) - 1
}

// Bind links node to the token at index tok.
func (m *ParseMetadata) Bind(node *Node, tok int) {
	if tok >= 0 && tok < len(m.tokens) {
		m.nodes[node] = tok
	}
}

// BindToken records tok and links node to it.
func (m *ParseMetadata) BindToken(node *Node, tok Token, line int) {
	m.Bind(node, m.AddToken(tok, line))
}

// Inherit links to with the token from is bound to. Rewriting passes use
// it so replacement nodes keep pointing at the source they stand for.
func (m *ParseMetadata) Inherit(from, to *Node) {
	if m == nil || from == nil || to == nil {
		return
	}
	if _, ok := m.nodes[to]; ok {
		return
	}
	if i, ok := m.lookup(from); ok {
		m.nodes[to] = i
	}
}

// lookup returns the token of node or, failing that, of its nearest
// bound ancestor.
func (m *ParseMetadata) lookup(node *Node) (int, bool) {
	for n := node; n != nil; n = n.parent {
		if i, ok := m.nodes[n]; ok {
			return i, true
		}
	}
	return 0, false
}

// Token returns the token node was parsed from.
func (m *ParseMetadata) Token(node *Node) (Token, bool) {
	if m == nil {
		return Token{}, false
	}
	i, ok := m.lookup(node)
	if !ok {
		return Token{}, false
	}
	return m.tokens[i], true
}

// Line returns the source line of node, or 0 when unknown.
func (m *ParseMetadata) Line(node *Node) int {
	if m == nil {
		return 0
	}
	i, ok := m.lookup(node)
	if !ok {
		return 0
	}
	return m.lines[i]
}

// LineOfToken returns the line of the token at index tok, or 0.
func (m *ParseMetadata) LineOfToken(tok int) int {
	if m == nil || tok < 0 || tok >= len(m.lines) {
		return 0
	}
	return m.lines[tok]
}

// Len returns the number of bound nodes.
func (m *ParseMetadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.nodes)
}

// Remap returns a copy of m whose bindings follow mapping from original
// to cloned nodes. Nodes missing from mapping are dropped.
func (m *ParseMetadata) Remap(mapping map[*Node]*Node) *ParseMetadata {
	if m == nil {
		return nil
	}
	out := &ParseMetadata{
		tokens: append([]Token(nil), m.tokens...),
		lines:  append([]int(nil), m.lines...),
		nodes:  make(map[*Node]int, len(m.nodes)),
	}
	for n, i := range m.nodes {
		if c, ok := mapping[n]; ok {
			out.nodes[c] = i
		}
	}
	return out
}

// Prune drops bindings of nodes no longer reachable from root.
func (m *ParseMetadata) Prune(root *Node) {
	if m == nil {
		return
	}
	live := make(map[*Node]struct{}, len(m.nodes))
	for n := range root.All() {
		live[n] = struct{}{}
	}
	for n := range m.nodes {
		if _, ok := live[n]; !ok {
			delete(m.nodes, n)
		}
	}
}
