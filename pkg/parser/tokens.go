package parser

// TokenType classifies a token.
type TokenType uint8

// Token types.
const (
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenString  // "hello"
	TokenNumber  // 123, 3.14, 1e-10
	TokenBoolean // true, false
	TokenName    // identifiers, quote fields, function names

	// Brackets
	TokenBraceOpen  // {
	TokenBraceClose // }
	TokenParenOpen  // (
	TokenParenClose // )

	// Punctuation
	TokenComma     // ,
	TokenColon     // :
	TokenSemicolon // ;
	TokenCondition // ?

	// Arithmetic
	TokenPlus  // +
	TokenMinus // -
	TokenMult  // *
	TokenDiv   // /
	TokenMod   // %

	// Assignment
	TokenAssign // =

	// Comparison
	TokenEqual        // ==
	TokenNotEqual     // != or <>
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=

	// Logic
	TokenAnd // and
	TokenOr  // or
	TokenNot // not

	// Statements
	TokenIf    // if
	TokenElse  // else
	TokenFor   // for
	TokenConst // const
	TokenDecl  // int, float, boolean
)

var tokenNames = [...]string{
	TokenEOF:          "(eof)",
	TokenError:        "(error)",
	TokenString:       "(string)",
	TokenNumber:       "(number)",
	TokenBoolean:      "(boolean)",
	TokenName:         "(name)",
	TokenBraceOpen:    "{",
	TokenBraceClose:   "}",
	TokenParenOpen:    "(",
	TokenParenClose:   ")",
	TokenComma:        ",",
	TokenColon:        ":",
	TokenSemicolon:    ";",
	TokenCondition:    "?",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenMult:         "*",
	TokenDiv:          "/",
	TokenMod:          "%",
	TokenAssign:       "=",
	TokenEqual:        "==",
	TokenNotEqual:     "!=",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenAnd:          "and",
	TokenOr:           "or",
	TokenNot:          "not",
	TokenIf:           "if",
	TokenElse:         "else",
	TokenFor:          "for",
	TokenConst:        "const",
	TokenDecl:         "(type)",
}

// String returns the symbol of an operator or a parenthesized class name.
func (tt TokenType) String() string {
	if int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return "(unknown)"
}

// Token is a lexeme with its location in the formula.
type Token struct {
	Type     TokenType
	Value    string
	Position int // byte offset of the first character
	Line     int // starts at 1
}

var singles = map[rune]TokenType{
	'{': TokenBraceOpen,
	'}': TokenBraceClose,
	'(': TokenParenOpen,
	')': TokenParenClose,
	',': TokenComma,
	';': TokenSemicolon,
	':': TokenColon,
	'?': TokenCondition,
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMult,
	'/': TokenDiv,
	'%': TokenMod,
	'=': TokenAssign,
	'<': TokenLess,
	'>': TokenGreater,
}

// pairs holds the two-rune operators. "&&", "||" and "<>" are alternate
// spellings of and, or and !=.
var pairs = map[[2]rune]TokenType{
	{'=', '='}: TokenEqual,
	{'!', '='}: TokenNotEqual,
	{'<', '>'}: TokenNotEqual,
	{'<', '='}: TokenLessEqual,
	{'>', '='}: TokenGreaterEqual,
	{'&', '&'}: TokenAnd,
	{'|', '|'}: TokenOr,
}

var keywords = map[string]TokenType{
	"and":     TokenAnd,
	"or":      TokenOr,
	"not":     TokenNot,
	"true":    TokenBoolean,
	"false":   TokenBoolean,
	"if":      TokenIf,
	"else":    TokenElse,
	"for":     TokenFor,
	"const":   TokenConst,
	"int":     TokenDecl,
	"float":   TokenDecl,
	"boolean": TokenDecl,
}
