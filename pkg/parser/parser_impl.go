package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

// declared is what the parser knows about a variable name.
type declared struct {
	typ      types.Type
	constant bool
}

// Parser implements a recursive descent parser for Gondola formulas.
// Operators are handled by binding power, top down operator precedence
// style.
type Parser struct {
	lexer   *Lexer
	current Token
	prev    Token
	next    *Token // one token of lookahead, see peek
	opts    CompileOptions

	arena *types.NodeArena
	meta  *types.ParseMetadata
	// scope holds the declarations made by the formula itself.
	scope map[string]declared
	funcs map[string]functions.Definition
	depth int
	ids   int
}

// NewParser returns a parser over a formula.
func NewParser(input string, opts ...CompileOption) *Parser {
	options := CompileOptions{
		MaxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&options)
	}

	p := &Parser{
		lexer: NewLexer(input),
		opts:  options,
		arena: types.NewNodeArena(),
		meta:  types.NewParseMetadata(),
		scope: make(map[string]declared),
		funcs: make(map[string]functions.Definition, len(options.Functions)),
	}
	for _, def := range options.Functions {
		p.funcs[def.Name] = def
	}

	// Read the first token
	p.advance()

	return p
}

// Parse parses the entire formula and returns the unchecked expression.
func (p *Parser) Parse() (*types.Expression, error) {
	// The first token may already be a lexing failure.
	if p.current.Type == TokenError {
		return nil, p.lexer.Error()
	}

	if p.current.Type == TokenEOF {
		return nil, p.error(types.ErrSyntaxError, "Empty expression")
	}

	node, err := p.parseStatements(TokenEOF)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenEOF {
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected token: %s", p.current.Value))
	}

	return types.NewExpression(node, p.lexer.src, p.meta), nil
}

// precedence is the left binding power of infix tokens.
var precedence = map[TokenType]int{
	TokenCondition:    15, // ?:
	TokenOr:           25, // or
	TokenAnd:          30, // and
	TokenEqual:        40, // ==
	TokenAssign:       40, // = (equality outside statement position)
	TokenNotEqual:     40, // != <>
	TokenLess:         40, // <
	TokenLessEqual:    40, // <=
	TokenGreater:      40, // >
	TokenGreaterEqual: 40, // >=
	TokenPlus:         50, // +
	TokenMinus:        50, // -
	TokenMult:         60, // *
	TokenDiv:          60, // /
	TokenMod:          60, // %
}

// unaryPrecedence is the binding power of prefix not and minus.
const unaryPrecedence = 70

var binaryOps = map[TokenType]types.Op{
	TokenPlus:         types.OpAdd,
	TokenMinus:        types.OpSub,
	TokenMult:         types.OpMul,
	TokenDiv:          types.OpDiv,
	TokenMod:          types.OpMod,
	TokenEqual:        types.OpEq,
	TokenAssign:       types.OpEq,
	TokenNotEqual:     types.OpNe,
	TokenLess:         types.OpLt,
	TokenLessEqual:    types.OpLe,
	TokenGreater:      types.OpGt,
	TokenGreaterEqual: types.OpGe,
	TokenAnd:          types.OpAnd,
	TokenOr:           types.OpOr,
}

func (p *Parser) getPrecedence(tt TokenType) int {
	if prec, ok := precedence[tt]; ok {
		return prec
	}
	return 0
}

// advance reads the next token and remembers the current one.
func (p *Parser) advance() {
	p.prev = p.current
	if p.next != nil {
		p.current, p.next = *p.next, nil
		return
	}
	p.current = p.lexer.Next()
}

// peek returns the token after the current one without consuming it.
func (p *Parser) peek() Token {
	if p.next == nil {
		tok := p.lexer.Next()
		p.next = &tok
	}
	return *p.next
}

// expect consumes a token of type tt or fails.
func (p *Parser) expect(tt TokenType) error {
	if p.current.Type != tt {
		return p.error(types.ErrExpectedToken, fmt.Sprintf("Expected %s but got %s", tt.String(), describe(p.current)))
	}
	p.advance()
	return nil
}

// error creates a parser error at the current token.
func (p *Parser) error(code types.ErrorCode, message string) error {
	return p.errorAt(p.current, code, message)
}

// errorAt creates a parser error at tok. Lexer failures take precedence
// since they explain why the token is malformed.
func (p *Parser) errorAt(tok Token, code types.ErrorCode, message string) error {
	if tok.Type == TokenError {
		if err := p.lexer.Error(); err != nil {
			return err
		}
	}
	return &types.Error{
		Code:     code,
		Message:  message,
		Position: tok.Position,
		Line:     tok.Line,
		Token:    tok.Value,
	}
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenError:
		return "invalid token"
	}
	return strconv.Quote(tok.Value)
}

// node allocates a node bound to tok and adopts children.
func (p *Parser) node(kind types.NodeKind, tok Token, children ...*types.Node) *types.Node {
	n := p.arena.Alloc(kind, len(children))
	for i, c := range children {
		// Operands come fresh from the parser and are never attached yet.
		_, _ = n.SetChild(c, i)
	}
	p.ids++
	n.ID = p.ids
	p.meta.BindToken(n, types.Token{Text: tok.Value, Offset: tok.Position}, tok.Line)
	return n
}

func (p *Parser) integer(tok Token, v int64) *types.Node {
	n := p.node(types.KindConstant, tok)
	n.Decl = types.Integer
	n.Value = float64(v)
	return n
}

// parseStatements parses statements separated by semicolons up to, not
// including, end. A trailing semicolon is allowed, and a statement ending
// with a closing brace needs no separator.
func (p *Parser) parseStatements(end TokenType) (*types.Node, error) {
	left, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	for {
		sep := p.current
		switch {
		case sep.Type == TokenSemicolon:
			p.advance()
			if p.current.Type == end {
				return left, nil
			}
		case p.prev.Type == TokenBraceClose && p.startsStatement():
		default:
			return left, nil
		}

		next, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		left = p.node(types.KindSequence, sep, left, next)
	}
}

// parseStatement parses a declaration, an assignment or an expression.
// This is the only place where "=" assigns: a declared variable followed
// by "=" at the start of a statement. Anywhere else "=" compares.
func (p *Parser) parseStatement() (*types.Node, error) {
	switch p.current.Type {
	case TokenConst, TokenDecl:
		return p.parseDeclaration()
	case TokenName:
		if p.peek().Type != TokenAssign {
			break
		}
		if d, ok := p.lookupVariable(p.current.Value); ok {
			tok := p.current
			p.advance()
			return p.parseAssignment(tok, d)
		}
	}
	return p.parseExpression(0)
}

// startsStatement reports whether the current token can begin a statement
// that does not start with an operator.
func (p *Parser) startsStatement() bool {
	switch p.current.Type {
	case TokenName, TokenNumber, TokenString, TokenBoolean,
		TokenIf, TokenFor, TokenConst, TokenDecl, TokenNot,
		TokenParenOpen, TokenBraceOpen:
		return true
	}
	return false
}

// parseExpression parses operators binding tighter than rbp.
func (p *Parser) parseExpression(rbp int) (*types.Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.opts.MaxDepth > 0 && p.depth > p.opts.MaxDepth {
		return nil, p.error(types.ErrTooDeep, fmt.Sprintf("Expression nested deeper than %d levels", p.opts.MaxDepth))
	}

	// nud
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	// led
	for rbp < p.getPrecedence(p.current.Type) {
		left, err = p.parseInfix(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

// parsePrefix parses a token that starts an operand.
func (p *Parser) parsePrefix() (*types.Node, error) {
	token := p.current

	switch token.Type {
	case TokenNumber:
		return p.parseNumber()
	case TokenString:
		return p.parseString()
	case TokenBoolean:
		return p.parseBoolean()
	case TokenName:
		return p.parseName()
	case TokenMinus:
		return p.parseUnary(types.OpNegate)
	case TokenNot:
		return p.parseUnary(types.OpNot)
	case TokenParenOpen:
		return p.parseGrouping()
	case TokenBraceOpen:
		return p.parseBlock()
	case TokenIf:
		return p.parseIf()
	case TokenFor:
		return p.parseFor()
	case TokenConst, TokenDecl:
		return nil, p.error(types.ErrSyntaxError, "Declaration not allowed inside an expression")
	case TokenEOF:
		return nil, p.error(types.ErrSyntaxError, "Unexpected end of expression")
	default:
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected token: %s", describe(token)))
	}
}

// parseInfix extends left with the operator in the current token.
func (p *Parser) parseInfix(left *types.Node) (*types.Node, error) {
	token := p.current

	if token.Type == TokenCondition {
		return p.parseConditional(left)
	}
	if _, ok := binaryOps[token.Type]; ok {
		return p.parseBinaryOp(left)
	}
	return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected infix token: %s", token.Type.String()))
}

// unescapeString resolves backslash escapes.
func unescapeString(s string) (string, error) {
	if !strings.Contains(s, "\\") {
		return s, nil
	}

	var result strings.Builder
	result.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			result.WriteByte(s[i])
			continue
		}

		i++ // Skip backslash
		if i >= len(s) {
			return "", fmt.Errorf("invalid escape sequence at end of string")
		}

		switch s[i] {
		case 'n':
			result.WriteByte('\n')
		case 't':
			result.WriteByte('\t')
		case 'r':
			result.WriteByte('\r')
		case '\\', '"', '\'':
			result.WriteByte(s[i])
		case 'u':
			// Unicode escape: \uXXXX
			if i+4 >= len(s) {
				return "", fmt.Errorf("invalid \\u escape: not enough characters")
			}
			code, err := strconv.ParseUint(s[i+1:i+5], 16, 16)
			if err != nil {
				return "", fmt.Errorf("invalid \\u escape: %s", s[i+1:i+5])
			}
			result.WriteRune(rune(code))
			i += 4
		default:
			return "", fmt.Errorf("invalid escape sequence: \\%c", s[i])
		}
	}

	return result.String(), nil
}

func (p *Parser) parseString() (*types.Node, error) {
	tok := p.current
	text, err := unescapeString(tok.Value)
	if err != nil {
		return nil, p.error(types.ErrSyntaxError, err.Error())
	}
	p.advance()

	node := p.node(types.KindString, tok)
	node.Text = text
	return node, nil
}

// parseNumber parses a number literal. Literals without a decimal point
// or exponent are integers.
func (p *Parser) parseNumber() (*types.Node, error) {
	tok := p.current
	p.advance()

	if !strings.ContainsAny(tok.Value, ".eE") {
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errorAt(tok, types.ErrNumberFormat, fmt.Sprintf("Integer literal out of range: %s", tok.Value))
		}
		return p.integer(tok, v), nil
	}

	v, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil || math.IsInf(v, 0) {
		return nil, p.errorAt(tok, types.ErrNumberFormat, fmt.Sprintf("Invalid number: %s", tok.Value))
	}
	node := p.node(types.KindConstant, tok)
	node.Decl = types.Float
	node.Value = v
	return node, nil
}

func (p *Parser) parseBoolean() (*types.Node, error) {
	tok := p.current
	p.advance()

	node := p.node(types.KindConstant, tok)
	node.Decl = types.Boolean
	node.Value = types.FromBool(tok.Value == "true")
	return node, nil
}

// parseName resolves an identifier: a quote field, a builtin or custom
// call or a variable reference.
func (p *Parser) parseName() (*types.Node, error) {
	tok := p.current
	name := tok.Value
	p.advance()

	if p.current.Type == TokenParenOpen {
		return p.parseFunctionCall(tok)
	}

	if field, ok := types.ParseQuoteField(name); ok {
		node := p.node(types.KindQuote, tok)
		node.Field = field
		return node, nil
	}

	if fn, ok := types.LookupFunc(name); ok {
		if fn.Arity() == 0 {
			return p.builtinCall(tok, fn, nil)
		}
		return nil, p.errorAt(tok, types.ErrSyntaxError, fmt.Sprintf("Function %s must be called with arguments", name))
	}

	d, ok := p.lookupVariable(name)
	if !ok {
		if _, isFunc := p.lookupFunction(name); isFunc {
			return nil, p.errorAt(tok, types.ErrSyntaxError, fmt.Sprintf("Function %s must be called", name))
		}
		return nil, p.errorAt(tok, types.ErrUnknownIdentifier, fmt.Sprintf("Unknown identifier: %s", name))
	}

	node := p.node(types.KindVariable, tok)
	node.Text = name
	node.Decl = d.typ
	return node, nil
}

// lookupVariable finds name among the formula's own declarations, then
// among the declared variables.
func (p *Parser) lookupVariable(name string) (declared, bool) {
	if d, ok := p.scope[name]; ok {
		return d, true
	}
	if p.opts.Variables != nil {
		if v, err := p.opts.Variables.Get(name); err == nil {
			return declared{typ: v.Type, constant: v.Constant}, true
		}
	}
	return declared{}, false
}

func (p *Parser) lookupFunction(name string) (functions.Definition, bool) {
	if def, ok := p.funcs[name]; ok {
		return def, true
	}
	return p.opts.Registry.Lookup(name)
}

// reserved reports whether name belongs to the language.
func (p *Parser) reserved(name string) bool {
	if _, ok := types.ParseQuoteField(name); ok {
		return true
	}
	if _, ok := types.LookupFunc(name); ok {
		return true
	}
	_, ok := p.lookupFunction(name)
	return ok
}

// parseAssignment parses "name = value". The name has been consumed.
func (p *Parser) parseAssignment(tok Token, d declared) (*types.Node, error) {
	p.advance() // Skip '='

	value, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	node := p.node(types.KindAssign, tok, value)
	node.Text = tok.Value
	node.Decl = d.typ
	node.Constant = d.constant
	return node, nil
}

// parseDeclaration parses "[const] type name = value".
func (p *Parser) parseDeclaration() (*types.Node, error) {
	constant := false
	if p.current.Type == TokenConst {
		constant = true
		p.advance()
	}
	if p.current.Type != TokenDecl {
		return nil, p.error(types.ErrExpectedToken, fmt.Sprintf("Expected type but got %s", describe(p.current)))
	}
	t := declType(p.current.Value)
	p.advance()

	if p.current.Type != TokenName {
		return nil, p.error(types.ErrExpectedToken, fmt.Sprintf("Expected variable name but got %s", describe(p.current)))
	}
	tok := p.current
	name := tok.Value
	if p.reserved(name) {
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Cannot declare %s: reserved name", name))
	}
	if d, ok := p.lookupVariable(name); ok && (d.typ != t || d.constant || constant) {
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Variable %s already declared as %s", name, d.typ))
	}
	p.advance()

	if err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	value, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	p.scope[name] = declared{typ: t, constant: constant}

	node := p.node(types.KindDefine, tok, value)
	node.Text = name
	node.Decl = t
	node.Constant = constant
	return node, nil
}

func declType(keyword string) types.Type {
	switch keyword {
	case "int":
		return types.Integer
	case "boolean":
		return types.Boolean
	default:
		return types.Float
	}
}

// parseUnary parses "not x" and "-x". Negated numeric literals are folded
// into a single literal.
func (p *Parser) parseUnary(op types.Op) (*types.Node, error) {
	tok := p.current
	p.advance()

	operand, err := p.parseExpression(unaryPrecedence)
	if err != nil {
		return nil, err
	}

	if op == types.OpNegate && operand.Kind == types.KindConstant && operand.Decl != types.Boolean {
		operand.Value = -operand.Value
		return operand, nil
	}

	node := p.node(types.KindUnary, tok, operand)
	node.Op = op
	return node, nil
}

// parseGrouping parses a parenthesized expression.
func (p *Parser) parseGrouping() (*types.Node, error) {
	p.advance() // Skip '('

	if p.current.Type == TokenParenClose {
		return nil, p.error(types.ErrSyntaxError, "Empty parentheses")
	}
	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	return node, nil
}

// parseBlock parses "{ statements }".
func (p *Parser) parseBlock() (*types.Node, error) {
	p.advance() // Skip '{'

	if p.current.Type == TokenBraceClose {
		return nil, p.error(types.ErrSyntaxError, "Empty block")
	}
	node, err := p.parseStatements(TokenBraceClose)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenBraceClose); err != nil {
		return nil, err
	}
	return node, nil
}

// parseBody parses the body of if and for: a block or a single
// statement.
func (p *Parser) parseBody() (*types.Node, error) {
	if p.current.Type == TokenBraceOpen {
		return p.parseBlock()
	}
	return p.parseStatement()
}

// parseIf parses "if (cond) { then } else { else }". The else branch is
// mandatory; "else if" chains are allowed.
func (p *Parser) parseIf() (*types.Node, error) {
	tok := p.current
	p.advance() // Skip 'if'

	if err := p.expect(TokenParenOpen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}

	then, err := p.parseBody()
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenElse {
		return nil, p.error(types.ErrExpectedToken, fmt.Sprintf("Expected else but got %s", describe(p.current)))
	}
	p.advance()

	var els *types.Node
	if p.current.Type == TokenIf {
		els, err = p.parseIf()
	} else {
		els, err = p.parseBody()
	}
	if err != nil {
		return nil, err
	}

	return p.node(types.KindIf, tok, cond, then, els), nil
}

// parseFor parses "for (init; cond; step) { body }".
func (p *Parser) parseFor() (*types.Node, error) {
	tok := p.current
	p.advance() // Skip 'for'

	if err := p.expect(TokenParenOpen); err != nil {
		return nil, err
	}

	// init and step are statements, the condition is an expression.
	var parts [3]*types.Node
	for i, sep := range [...]TokenType{TokenSemicolon, TokenSemicolon, TokenParenClose} {
		var part *types.Node
		var err error
		if i == 1 {
			part, err = p.parseExpression(0)
		} else {
			part, err = p.parseStatement()
		}
		if err != nil {
			return nil, err
		}
		if err := p.expect(sep); err != nil {
			return nil, err
		}
		parts[i] = part
	}

	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}

	return p.node(types.KindFor, tok, parts[0], parts[1], parts[2], body), nil
}

// parseBinaryOp parses the right operand of a left-associative operator.
func (p *Parser) parseBinaryOp(left *types.Node) (*types.Node, error) {
	op := p.current
	prec := p.getPrecedence(op.Type)
	p.advance()

	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}

	node := p.node(types.KindBinary, op, left, right)
	node.Op = binaryOps[op.Type]
	return node, nil
}

// parseConditional parses "c ? a : b" into an if node.
func (p *Parser) parseConditional(condition *types.Node) (*types.Node, error) {
	tok := p.current
	p.advance() // Skip '?'

	// Parse 'then' expression
	thenExpr, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	if err := p.expect(TokenColon); err != nil {
		return nil, err
	}

	// Right associative: a ? b : c ? d : e nests in the else branch.
	elseExpr, err := p.parseExpression(precedence[TokenCondition] - 1)
	if err != nil {
		return nil, err
	}

	return p.node(types.KindIf, tok, condition, thenExpr, elseExpr), nil
}

// parseArguments parses a parenthesized, comma separated argument list.
func (p *Parser) parseArguments() ([]*types.Node, error) {
	if err := p.expect(TokenParenOpen); err != nil {
		return nil, err
	}

	var args []*types.Node
	if p.current.Type != TokenParenClose {
		for {
			arg, err := p.parseExpression(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.current.Type == TokenParenClose {
				break
			}

			if err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
	}

	if err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	return args, nil
}

// parseFunctionCall parses a call. Called when we see name followed by '('.
// A quote field called with one argument reads the field at an offset:
// close(-1) is lag(close, -1).
func (p *Parser) parseFunctionCall(tok Token) (*types.Node, error) {
	args, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	name := tok.Value

	if field, ok := types.ParseQuoteField(name); ok {
		if len(args) > 1 {
			return nil, p.errorAt(tok, types.ErrArgumentCount, fmt.Sprintf("%s takes at most one offset, got %d arguments", name, len(args)))
		}
		quote := p.node(types.KindQuote, tok)
		quote.Field = field
		if len(args) == 0 {
			return quote, nil
		}
		lag := p.node(types.KindCall, tok, quote, args[0])
		lag.Func = types.FuncLag
		return lag, nil
	}

	if fn, ok := types.LookupFunc(name); ok {
		return p.builtinCall(tok, fn, args)
	}

	if def, ok := p.lookupFunction(name); ok {
		if len(args) != len(def.Params) {
			return nil, p.errorAt(tok, types.ErrArgumentCount, fmt.Sprintf("%s expects %d arguments, got %d", name, len(def.Params), len(args)))
		}
		node := p.node(types.KindCall, tok, args...)
		node.Func = types.FuncCustom
		node.Text = name
		node.Sig = def.Signature()
		return node, nil
	}

	if _, ok := p.lookupVariable(name); ok {
		return nil, p.errorAt(tok, types.ErrSyntaxError, fmt.Sprintf("%s is a variable, not a function", name))
	}
	return nil, p.errorAt(tok, types.ErrUnknownFunction, fmt.Sprintf("Unknown function: %s", name))
}

// builtinCall checks the argument count of a builtin and fills omitted
// trailing operands with integer zero.
func (p *Parser) builtinCall(tok Token, fn types.Func, args []*types.Node) (*types.Node, error) {
	lo, hi := fn.MinArity(), fn.Arity()
	if len(args) < lo || len(args) > hi {
		want := strconv.Itoa(hi)
		if lo != hi {
			want = fmt.Sprintf("%d to %d", lo, hi)
		}
		return nil, p.errorAt(tok, types.ErrArgumentCount, fmt.Sprintf("%s expects %s arguments, got %d", fn, want, len(args)))
	}
	for len(args) < hi {
		args = append(args, p.integer(tok, 0))
	}

	node := p.node(types.KindCall, tok, args...)
	node.Func = fn
	return node, nil
}
