package types

import (
	"strings"
	"time"
)

// QuoteField selects one column of a daily quote.
type QuoteField uint8

const (
	FieldOpen QuoteField = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
)

var quoteFieldNames = [...]string{"open", "high", "low", "close", "volume"}

// String returns the Gondola keyword for the field.
func (f QuoteField) String() string {
	if int(f) < len(quoteFieldNames) {
		return quoteFieldNames[f]
	}
	return "unknown"
}

// Type returns the quote field type a reference to f resolves to.
func (f QuoteField) Type() Type {
	if f == FieldVolume {
		return IntegerQuoteField
	}
	return FloatQuoteField
}

// ParseQuoteField maps a keyword to its field.
func ParseQuoteField(name string) (QuoteField, bool) {
	name = strings.ToLower(name)
	for i, n := range quoteFieldNames {
		if n == name {
			return QuoteField(i), true
		}
	}
	return 0, false
}

// QuoteFields lists every field in column order.
func QuoteFields() []QuoteField {
	return []QuoteField{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}
}

// Symbol is an opaque ticker used as a lookup key.
type Symbol string

// QuoteSource is the read-only view of quote data the evaluator consumes.
//
// Days are dense, zero based positions into the trading days available
// for a symbol. Implementations must be safe for concurrent reads.
type QuoteSource interface {
	// Quote returns field for symbol on day, or an error when the
	// symbol, day or field is not available.
	Quote(symbol Symbol, day int, field QuoteField) (float64, error)
	// Days returns the number of trading days held for symbol.
	Days(symbol Symbol) int
}

// DatedSource is implemented by quote sources that know the calendar
// date of each trading day.
type DatedSource interface {
	Date(symbol Symbol, day int) (time.Time, error)
}
