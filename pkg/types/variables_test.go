package types_test

import (
	"reflect"
	"testing"

	"github.com/sandrolain/gondola/pkg/types"
)

func TestVariables(t *testing.T) {
	vars := types.NewVariables()
	if err := vars.Add("threshold", types.Float, 1.5); err != nil {
		t.Fatal(err)
	}
	if err := vars.AddConstant("period", types.Integer, 14); err != nil {
		t.Fatal(err)
	}
	if err := vars.AddFunction("x", types.Float, 0); err != nil {
		t.Fatal(err)
	}

	if err := vars.Add("threshold", types.Float, 2); err == nil {
		t.Error("duplicate declaration accepted")
	}
	if err := vars.Add("label", types.String, 0); err == nil {
		t.Error("string variable accepted")
	}

	if got := vars.Names(); !reflect.DeepEqual(got, []string{"period", "threshold", "x"}) {
		t.Errorf("Names() = %v", got)
	}
	v, err := vars.Get("period")
	if err != nil || !v.Constant || v.Type != types.Integer {
		t.Errorf("Get(period) = %+v, %v", v, err)
	}
	if err := vars.SetValue("period", 20); err != nil {
		t.Fatal(err)
	}
	if got, _ := vars.Value("period"); got != 20 {
		t.Errorf("Value(period) = %v, want 20", got)
	}

	_, err = vars.Get("missing")
	if !types.IsVariableNotFound(err) || !types.IsEvaluationFailure(err) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if err := vars.SetValue("missing", 1); !types.IsVariableNotFound(err) {
		t.Errorf("SetValue(missing) error = %v", err)
	}

	vars.Remove("x")
	if vars.Contains("x") || vars.Len() != 2 {
		t.Error("Remove() did not delete the variable")
	}
}

func TestVariablesClone(t *testing.T) {
	vars := types.NewVariables()
	_ = vars.Add("n", types.Integer, 1)
	c := vars.Clone()
	_ = c.SetValue("n", 5)
	_ = c.Add("m", types.Boolean, types.True)

	if got, _ := vars.Value("n"); got != 1 {
		t.Errorf("original changed to %v", got)
	}
	if vars.Contains("m") {
		t.Error("declaration leaked into the original")
	}
}

func TestNilVariables(t *testing.T) {
	var vars *types.Variables
	if vars.Len() != 0 || vars.Contains("x") || vars.Names() != nil {
		t.Error("nil store not empty")
	}
	if _, err := vars.Get("x"); !types.IsVariableNotFound(err) {
		t.Errorf("Get() on nil store = %v", err)
	}
	if vars.Clone().Len() != 0 {
		t.Error("clone of nil store not empty")
	}
}

func TestZeroVariables(t *testing.T) {
	var vars types.Variables
	if err := vars.Add("k", types.Float, 2); err != nil {
		t.Fatalf("Add() on zero store: %v", err)
	}
	if v, err := vars.Value("k"); err != nil || v != 2 {
		t.Errorf("Value(k) = %v, %v", v, err)
	}
	if err := vars.Add("k", types.Float, 3); err == nil {
		t.Error("redeclaration accepted")
	}
}

func TestParseMetadata(t *testing.T) {
	meta := types.NewParseMetadata()
	left := types.NewQuote(types.FieldClose)
	right := types.NewInteger(1)
	root := types.NewBinary(types.OpGt, left, right)

	meta.BindToken(root, types.Token{Text: ">", Offset: 6}, 1)
	meta.BindToken(right, types.Token{Text: "1", Offset: 9}, 2)

	if got := meta.Line(right); got != 2 {
		t.Errorf("Line(right) = %d, want 2", got)
	}
	// Unbound nodes report the token of their nearest bound ancestor.
	if tok, ok := meta.Token(left); !ok || tok.Text != ">" {
		t.Errorf("Token(left) = %+v, %v", tok, ok)
	}
	if meta.LineOfToken(0) != 1 || meta.LineOfToken(7) != 0 {
		t.Error("LineOfToken() out of range must be 0")
	}

	folded := types.NewBoolean(true)
	meta.Inherit(root, folded)
	if meta.Line(folded) != 1 {
		t.Error("Inherit() did not copy the binding")
	}

	meta.Prune(root)
	if meta.Len() != 2 {
		t.Errorf("Prune() left %d bindings, want 2", meta.Len())
	}

	var none *types.ParseMetadata
	if none.Line(root) != 0 || none.Len() != 0 || none.Remap(nil) != nil {
		t.Error("nil metadata must be inert")
	}
}

func TestExpressionClone(t *testing.T) {
	meta := types.NewParseMetadata()
	root := types.NewBinary(types.OpAdd, types.NewQuote(types.FieldOpen), types.NewInteger(2))
	meta.BindToken(root.Child(1), types.Token{Text: "2", Offset: 7}, 3)
	root.SetType(types.Float)
	expr := types.NewExpression(root, "open +\n\n2", meta)

	if !expr.Checked() || expr.Type() != types.Float {
		t.Fatal("expression not reported as checked")
	}
	c := expr.Clone()
	if c.Root() == expr.Root() || !c.Root().Equal(expr.Root()) {
		t.Fatal("clone must copy the tree")
	}
	if got := c.Line(c.Root().Child(1)); got != 3 {
		t.Errorf("cloned metadata line = %d, want 3", got)
	}
	if c.Source() != expr.Source() || c.String() != "open +\n\n2" {
		t.Error("clone lost the source")
	}

	empty := types.NewExpression(nil, "", nil)
	if empty.Checked() || empty.Clone().Root() != nil {
		t.Error("empty expression")
	}
}
