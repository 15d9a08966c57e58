package types

// Type identifies the kind of value a Gondola expression produces.
//
// Every value is carried as a float64 at runtime; Type only drives the
// static checks performed by the checker and a few evaluation rules
// (integer division, boolean normalisation).
type Type uint8

const (
	// Undefined is the type of a node that has not been checked yet.
	// A checked, well-formed tree never reports it.
	Undefined Type = iota
	Boolean
	Float
	Integer
	FloatQuoteField
	IntegerQuoteField
	String
	ShortInteger
	// Numeric is a type class (Float or Integer) used in signatures and
	// error messages; no node resolves to it.
	Numeric
)

// TruthThreshold is the value above which a number reads as true.
const TruthThreshold = 0.1

// Canonical boolean values.
const (
	False = 0.0
	True  = 1.0
)

// String returns the Gondola name of the type.
func (t Type) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Float:
		return "float"
	case Integer:
		return "integer"
	case FloatQuoteField:
		return "float quote"
	case IntegerQuoteField:
		return "integer quote"
	case String:
		return "string"
	case ShortInteger:
		return "short integer"
	case Numeric:
		return "numeric"
	default:
		return "undefined"
	}
}

// ParseType maps the declaration keywords int, float and boolean (and
// the long names integer and bool) to their type.
func ParseType(name string) (Type, bool) {
	switch name {
	case "int", "integer":
		return Integer, true
	case "float":
		return Float, true
	case "boolean", "bool":
		return Boolean, true
	}
	return Undefined, false
}

// IsNumeric reports whether values of t take part in arithmetic.
func (t Type) IsNumeric() bool {
	switch t {
	case Float, Integer, ShortInteger, FloatQuoteField, IntegerQuoteField, Numeric:
		return true
	}
	return false
}

// IsIntegral reports whether t is an integer class type.
func (t Type) IsIntegral() bool {
	switch t {
	case Integer, ShortInteger, IntegerQuoteField:
		return true
	}
	return false
}

// IsQuoteField reports whether t is one of the quote field types.
func (t Type) IsQuoteField() bool {
	return t == FloatQuoteField || t == IntegerQuoteField
}

// Underlying maps quote field and short integer types to the plain
// numeric type they behave as in arithmetic.
func (t Type) Underlying() Type {
	switch t {
	case FloatQuoteField:
		return Float
	case IntegerQuoteField, ShortInteger:
		return Integer
	}
	return t
}

// Accepts reports whether a value of type actual satisfies t when t is
// used as an expected type in a signature.
func (t Type) Accepts(actual Type) bool {
	switch t {
	case Numeric:
		return actual.IsNumeric()
	case Float:
		return actual.IsNumeric()
	case Integer, ShortInteger:
		return actual.IsIntegral()
	case FloatQuoteField, IntegerQuoteField:
		return actual.IsQuoteField()
	}
	return t == actual
}

// Promote returns the arithmetic result type of two numeric operands.
func Promote(a, b Type) Type {
	if a.Underlying() == Float || b.Underlying() == Float {
		return Float
	}
	return Integer
}

// IsTrue applies the truth threshold to v.
func IsTrue(v float64) bool {
	return v > TruthThreshold
}

// FromBool returns the canonical number for b.
func FromBool(b bool) float64 {
	if b {
		return True
	}
	return False
}
