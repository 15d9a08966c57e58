package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sandrolain/gondola/pkg/types"
)

func TestTypeClasses(t *testing.T) {
	tests := []struct {
		typ        types.Type
		numeric    bool
		integral   bool
		underlying types.Type
	}{
		{types.Boolean, false, false, types.Boolean},
		{types.Float, true, false, types.Float},
		{types.Integer, true, true, types.Integer},
		{types.FloatQuoteField, true, false, types.Float},
		{types.IntegerQuoteField, true, true, types.Integer},
		{types.ShortInteger, true, true, types.Integer},
		{types.String, false, false, types.String},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.IsNumeric(); got != tt.numeric {
				t.Errorf("IsNumeric() = %v, want %v", got, tt.numeric)
			}
			if got := tt.typ.IsIntegral(); got != tt.integral {
				t.Errorf("IsIntegral() = %v, want %v", got, tt.integral)
			}
			if got := tt.typ.Underlying(); got != tt.underlying {
				t.Errorf("Underlying() = %v, want %v", got, tt.underlying)
			}
		})
	}
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		want, actual types.Type
		ok           bool
	}{
		{types.Numeric, types.Integer, true},
		{types.Numeric, types.FloatQuoteField, true},
		{types.Numeric, types.Boolean, false},
		{types.Float, types.Integer, true},
		{types.Integer, types.Float, false},
		{types.Integer, types.IntegerQuoteField, true},
		{types.FloatQuoteField, types.IntegerQuoteField, true},
		{types.FloatQuoteField, types.Float, false},
		{types.Boolean, types.Boolean, true},
		{types.Boolean, types.Integer, false},
	}
	for _, tt := range tests {
		if got := tt.want.Accepts(tt.actual); got != tt.ok {
			t.Errorf("%s.Accepts(%s) = %v, want %v", tt.want, tt.actual, got, tt.ok)
		}
	}
}

func TestPromote(t *testing.T) {
	if got := types.Promote(types.Integer, types.IntegerQuoteField); got != types.Integer {
		t.Errorf("Promote(integer, integer quote) = %s", got)
	}
	if got := types.Promote(types.Integer, types.FloatQuoteField); got != types.Float {
		t.Errorf("Promote(integer, float quote) = %s", got)
	}
}

func TestTruth(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{0, false},
		{0.1, false},
		{0.11, true},
		{1, true},
		{-1, false},
	}
	for _, tt := range tests {
		if got := types.IsTrue(tt.v); got != tt.want {
			t.Errorf("IsTrue(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
	if types.FromBool(true) != types.True || types.FromBool(false) != types.False {
		t.Error("FromBool does not return the canonical values")
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		name string
		want types.Type
		ok   bool
	}{
		{"int", types.Integer, true},
		{"integer", types.Integer, true},
		{"float", types.Float, true},
		{"boolean", types.Boolean, true},
		{"bool", types.Boolean, true},
		{"string", types.Undefined, false},
		{"", types.Undefined, false},
	}
	for _, tt := range tests {
		got, ok := types.ParseType(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseType(%q) = %s, %v; want %s, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatConstant(t *testing.T) {
	tests := []struct {
		typ  types.Type
		v    float64
		want string
	}{
		{types.Boolean, 1, "true"},
		{types.Boolean, 0.05, "false"},
		{types.Integer, 42, "42"},
		{types.Integer, -3, "-3"},
		{types.Float, 2, "2.0"},
		{types.Float, 2.5, "2.5"},
	}
	for _, tt := range tests {
		if got := types.FormatConstant(tt.typ, tt.v); got != tt.want {
			t.Errorf("FormatConstant(%s, %v) = %q, want %q", tt.typ, tt.v, got, tt.want)
		}
	}
}

func TestQuoteFields(t *testing.T) {
	for _, f := range types.QuoteFields() {
		got, ok := types.ParseQuoteField(f.String())
		if !ok || got != f {
			t.Errorf("ParseQuoteField(%q) = %v, %v", f.String(), got, ok)
		}
	}
	if types.FieldVolume.Type() != types.IntegerQuoteField {
		t.Errorf("volume type = %s", types.FieldVolume.Type())
	}
	if types.FieldClose.Type() != types.FloatQuoteField {
		t.Errorf("close type = %s", types.FieldClose.Type())
	}
	if _, ok := types.ParseQuoteField("adjusted"); ok {
		t.Error("unknown field parsed")
	}
}

func TestFuncs(t *testing.T) {
	fn, ok := types.LookupFunc("avg")
	if !ok || fn != types.FuncAvg {
		t.Fatalf("LookupFunc(avg) = %v, %v", fn, ok)
	}
	if !fn.IsWindow() {
		t.Error("avg is not a window function")
	}
	if fn.String() != "avg" {
		t.Errorf("String() = %q", fn.String())
	}
	if fn.MinArity() > fn.Arity() {
		t.Errorf("min arity %d above arity %d", fn.MinArity(), fn.Arity())
	}
	if _, ok := types.LookupFunc("nosuchfunc"); ok {
		t.Error("unknown function found")
	}
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want types.Category
	}{
		{types.ErrSyntaxError, types.CategoryParse},
		{types.ErrUnknownIdentifier, types.CategoryParse},
		{types.ErrTypeMismatch, types.CategoryType},
		{types.ErrInvalidRootType, types.CategoryType},
		{types.ErrDivisionByZero, types.CategoryEvaluation},
		{types.ErrNoDates, types.CategoryEvaluation},
		{types.ErrorCode("X9999"), types.CategoryUnknown},
	}
	for _, tt := range tests {
		if got := tt.code.Category(); got != tt.want {
			t.Errorf("%s.Category() = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("feed down")
	ge := types.Errorf(types.ErrMissingQuote, "no close on day %d", 3).
		WithCause(cause).
		AtDay("ACME", 3)
	wrapped := fmt.Errorf("scanning: %w", ge)

	got, ok := types.AsError(wrapped)
	if !ok || got != ge {
		t.Fatal("AsError did not find the Gondola error")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !types.IsEvaluationFailure(wrapped) || types.IsParseFailure(wrapped) || types.IsTypeMismatch(wrapped) {
		t.Error("wrong category predicates")
	}
	if types.IsVariableNotFound(wrapped) {
		t.Error("missing quote reported as variable miss")
	}
	if _, ok := types.AsError(cause); ok {
		t.Error("plain error reported as Gondola error")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *types.Error
		want string
	}{
		{"position", types.NewError(types.ErrSyntaxError, "Unexpected )", 4), "G0104 at position 4: Unexpected )"},
		{"line", types.NewError(types.ErrSyntaxError, "Unexpected )", 4).WithLine(2), "G0104 at line 2: Unexpected )"},
		{"day", types.Errorf(types.ErrDivisionByZero, "division by zero").AtDay("ACME", 7),
			`G0301: division by zero (symbol "ACME", day 7)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
