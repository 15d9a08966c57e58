package parser

import (
	"unicode"
	"unicode/utf8"

	"github.com/sandrolain/gondola/pkg/types"
)

const eof rune = -1

// Lexer splits a formula into tokens. It is a hand-written state machine
// in the style of text/template's lexer, pulled one token at a time.
type Lexer struct {
	src       string
	start     int // offset of the token being scanned
	pos       int // offset of the next rune
	width     int // size of the rune last read, 0 after backup
	line      int
	startLine int
	err       error
}

// NewLexer returns a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, startLine: 1}
}

// Next scans the next token. Once the input is exhausted every call
// returns TokenEOF; after a failure every call returns TokenError.
func (l *Lexer) Next() Token {
	l.skipSpace()
	if l.err != nil {
		return Token{Type: TokenError, Position: l.start, Line: l.startLine}
	}

	r := l.read()
	switch {
	case r == eof:
		return Token{Type: TokenEOF, Position: l.pos, Line: l.line}
	case r == '"' || r == '\'':
		l.discard()
		return l.quoted(r)
	case isDigit(r) || r == '.' && isDigit(l.peek()):
		l.rewind()
		return l.number()
	case isNameStart(r):
		return l.name()
	}

	if tt, ok := pairs[[2]rune{r, l.peek()}]; ok {
		l.read()
		return l.emit(tt)
	}
	if tt, ok := singles[r]; ok {
		return l.emit(tt)
	}
	return l.fail(types.ErrUnexpectedChar, "Unexpected character "+string(r))
}

// Error returns the failure that stopped the lexer, or nil.
func (l *Lexer) Error() error {
	return l.err
}

// quoted scans up to the closing quote. The token value excludes both
// quotes and keeps escapes as written.
func (l *Lexer) quoted(quote rune) Token {
	for {
		r := l.read()
		if r == quote {
			break
		}
		if r == '\\' {
			r = l.read()
		}
		if r == eof {
			return l.fail(types.ErrStringNotClosed, "Unterminated string literal")
		}
	}
	l.unread()
	tok := l.emit(TokenString)
	l.read()
	l.discard()
	return tok
}

// number scans digits, an optional fraction and an optional exponent.
func (l *Lexer) number() Token {
	l.skip(isDigit)
	if l.take(is('.')) && !l.skip(isDigit) {
		return l.fail(types.ErrNumberFormat, "Missing digits after decimal point")
	}
	if l.take(is('e', 'E')) {
		l.take(is('+', '-'))
		if !l.skip(isDigit) {
			return l.fail(types.ErrNumberFormat, "Missing exponent digits")
		}
	}
	if l.take(isNameStart) {
		return l.fail(types.ErrNumberFormat, "Invalid number literal")
	}
	return l.emit(TokenNumber)
}

func (l *Lexer) name() Token {
	l.skip(isNamePart)
	tok := l.emit(TokenName)
	if tt, ok := keywords[tok.Value]; ok {
		tok.Type = tt
	}
	return tok
}

func (l *Lexer) emit(tt TokenType) Token {
	tok := Token{
		Type:     tt,
		Value:    l.src[l.start:l.pos],
		Position: l.start,
		Line:     l.startLine,
	}
	l.discard()
	return tok
}

func (l *Lexer) fail(code types.ErrorCode, msg string) Token {
	tok := l.emit(TokenError)
	l.err = &types.Error{
		Code:     code,
		Message:  msg,
		Position: tok.Position,
		Line:     tok.Line,
		Token:    tok.Value,
	}
	return tok
}

func (l *Lexer) read() rune {
	if l.err != nil || l.pos >= len(l.src) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.width = w
	l.pos += w
	if r == '\n' {
		l.line++
	}
	return r
}

// unread steps back over the rune last read. It can only be called once
// per read.
func (l *Lexer) unread() {
	if l.width == 0 {
		return
	}
	l.pos -= l.width
	l.width = 0
	if l.src[l.pos] == '\n' {
		l.line--
	}
}

// rewind moves back to the start of the current token.
func (l *Lexer) rewind() {
	l.pos = l.start
	l.line = l.startLine
	l.width = 0
}

func (l *Lexer) peek() rune {
	r := l.read()
	l.unread()
	return r
}

// discard drops the text scanned so far.
func (l *Lexer) discard() {
	l.start = l.pos
	l.startLine = l.line
	l.width = 0
}

// take consumes the next rune if ok accepts it.
func (l *Lexer) take(ok func(rune) bool) bool {
	if ok(l.read()) {
		return true
	}
	l.unread()
	return false
}

// skip consumes runes while ok accepts them and reports whether any did.
func (l *Lexer) skip(ok func(rune) bool) bool {
	n := 0
	for l.take(ok) {
		n++
	}
	return n > 0
}

// skipSpace drops blanks and comments before a token.
func (l *Lexer) skipSpace() {
	for l.err == nil {
		l.skip(unicode.IsSpace)
		l.discard()

		switch {
		case l.take(is('#')):
			l.skip(notNewline)
		case l.peek() == '/' && l.peekAt(1) == '/':
			l.skip(notNewline)
		case l.peek() == '/' && l.peekAt(1) == '*':
			l.pos += 2
			if !l.blockComment() {
				l.err = &types.Error{
					Code:     types.ErrSyntaxError,
					Message:  "Unclosed comment",
					Position: l.start,
					Line:     l.startLine,
				}
				return
			}
		default:
			return
		}
	}
}

// blockComment consumes a /* */ body whose opener was already read.
func (l *Lexer) blockComment() bool {
	for {
		switch l.read() {
		case eof:
			return false
		case '*':
			if l.take(is('/')) {
				return true
			}
		}
	}
}

// peekAt returns the byte i positions ahead without consuming it.
func (l *Lexer) peekAt(i int) byte {
	if l.pos+i >= len(l.src) {
		return 0
	}
	return l.src[l.pos+i]
}

func is(runes ...rune) func(rune) bool {
	return func(r rune) bool {
		for _, c := range runes {
			if r == c {
				return true
			}
		}
		return false
	}
}

func notNewline(r rune) bool {
	return r != '\n' && r != eof
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNamePart(r rune) bool {
	return isNameStart(r) || isDigit(r)
}
