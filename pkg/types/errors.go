package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a Gondola error code.
type ErrorCode string

// Error codes. The second and third characters select the category.
const (
	// G01xx: Parse failures
	ErrUnexpectedChar    ErrorCode = "G0101"
	ErrStringNotClosed   ErrorCode = "G0102"
	ErrNumberFormat      ErrorCode = "G0103"
	ErrSyntaxError       ErrorCode = "G0104"
	ErrExpectedToken     ErrorCode = "G0105"
	ErrUnknownFunction   ErrorCode = "G0106"
	ErrUnknownIdentifier ErrorCode = "G0107"
	ErrArgumentCount     ErrorCode = "G0108"
	ErrTooDeep           ErrorCode = "G0109"

	// G02xx: Type mismatches
	ErrTypeMismatch     ErrorCode = "G0201"
	ErrIncompleteTree   ErrorCode = "G0202"
	ErrAssignToConstant ErrorCode = "G0203"
	ErrInvalidRootType  ErrorCode = "G0204"

	// G03xx: Evaluation failures
	ErrDivisionByZero      ErrorCode = "G0301"
	ErrDayOutOfRange       ErrorCode = "G0302"
	ErrMissingQuote        ErrorCode = "G0303"
	ErrVariableNotFound    ErrorCode = "G0304"
	ErrNotChecked          ErrorCode = "G0305"
	ErrRecursionDepth      ErrorCode = "G0306"
	ErrIterationLimit      ErrorCode = "G0307"
	ErrInvalidWindow       ErrorCode = "G0308"
	ErrFunctionFailed      ErrorCode = "G0309"
	ErrUndefinedFunction   ErrorCode = "G0310"
	ErrInvalidOperand      ErrorCode = "G0311"
	ErrEvaluationCancelled ErrorCode = "G0312"
	ErrNoDates             ErrorCode = "G0313"
)

// Category groups error codes by the stage that raised them.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryParse
	CategoryType
	CategoryEvaluation
)

// String returns the category name used in diagnostics.
func (c Category) String() string {
	switch c {
	case CategoryParse:
		return "parse failure"
	case CategoryType:
		return "type mismatch"
	case CategoryEvaluation:
		return "evaluation failure"
	}
	return "error"
}

// Category returns the category of the code.
func (c ErrorCode) Category() Category {
	switch {
	case strings.HasPrefix(string(c), "G01"):
		return CategoryParse
	case strings.HasPrefix(string(c), "G02"):
		return CategoryType
	case strings.HasPrefix(string(c), "G03"):
		return CategoryEvaluation
	}
	return CategoryUnknown
}

// Error represents a structured Gondola error.
//
// Parse errors fill Position and Line, type errors fill Node, Expected and
// Actual, evaluation errors fill Node, Symbol and Day. Fields that do not
// apply keep their zero value (Position and Line use -1 / 0).
type Error struct {
	Code     ErrorCode
	Message  string
	Position int
	Line     int
	Token    string

	// Node is the offending node, when known.
	Node     *Node
	Expected Type
	Actual   Type

	Symbol Symbol
	Day    int
	HasDay bool

	Err error
}

// NewError creates a new Gondola error.
func NewError(code ErrorCode, message string, position int) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Position: position,
	}
}

// Errorf creates a new Gondola error with a formatted message and no
// source position.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...), -1)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	switch {
	case e.Line > 0:
		fmt.Fprintf(&b, " at line %d", e.Line)
	case e.Position >= 0:
		fmt.Fprintf(&b, " at position %d", e.Position)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.HasDay {
		fmt.Fprintf(&b, " (symbol %q, day %d)", string(e.Symbol), e.Day)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Category returns the category of the error code.
func (e *Error) Category() Category {
	return e.Code.Category()
}

// WithToken adds token information to the error.
func (e *Error) WithToken(token string) *Error {
	e.Token = token
	return e
}

// WithCause wraps another error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithLine records the source line of the error.
func (e *Error) WithLine(line int) *Error {
	e.Line = line
	return e
}

// WithNode records the offending node.
func (e *Error) WithNode(n *Node) *Error {
	e.Node = n
	return e
}

// AtDay records the evaluation point that failed. It keeps the first
// recorded point when called more than once.
func (e *Error) AtDay(symbol Symbol, day int) *Error {
	if !e.HasDay {
		e.Symbol = symbol
		e.Day = day
		e.HasDay = true
	}
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func hasCategory(err error, c Category) bool {
	ge, ok := AsError(err)
	return ok && ge.Category() == c
}

// IsParseFailure reports whether err is a parse failure.
func IsParseFailure(err error) bool {
	return hasCategory(err, CategoryParse)
}

// IsTypeMismatch reports whether err was raised by the type checker.
func IsTypeMismatch(err error) bool {
	return hasCategory(err, CategoryType)
}

// IsEvaluationFailure reports whether err is a runtime failure. Variable
// lookup misses are evaluation failures too.
func IsEvaluationFailure(err error) bool {
	return hasCategory(err, CategoryEvaluation)
}

// IsVariableNotFound reports whether err is a variable lookup miss.
func IsVariableNotFound(err error) bool {
	ge, ok := AsError(err)
	return ok && ge.Code == ErrVariableNotFound
}
