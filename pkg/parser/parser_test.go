package parser_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/parser"
	"github.com/sandrolain/gondola/pkg/types"
)

var half = functions.Definition{
	Name:   "half",
	Params: []types.Type{types.Numeric},
	Result: types.Float,
	Fn: func(_ context.Context, args ...float64) (float64, error) {
		return args[0] / 2, nil
	},
}

func testVariables(t *testing.T) *types.Variables {
	t.Helper()
	vars := types.NewVariables()
	if err := vars.Add("k", types.Float, 1.5); err != nil {
		t.Fatal(err)
	}
	if err := vars.AddConstant("period", types.Integer, 14); err != nil {
		t.Fatal(err)
	}
	if err := vars.Add("flag", types.Boolean, types.True); err != nil {
		t.Fatal(err)
	}
	return vars
}

func parse(t *testing.T, input string) *types.Expression {
	t.Helper()
	expr, err := parser.Parse(input, parser.WithVariables(testVariables(t)), parser.WithFunctions(half))
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", input, err)
	}
	return expr
}

func TestParseTree(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"precedence", "1 + 2 * 3", "1 + (2 * 3)"},
		{"left associative", "10 - 4 - 3", "(10 - 4) - 3"},
		{"grouping", "(1 + 2) * 3", "(1 + 2) * 3"},
		{"logic", "close > open and volume > 1000 or flag", "((close > open) and (volume > 1000)) or flag"},
		{"symbolic logic", "close > open && flag || not flag", "((close > open) and flag) or not flag"},
		{"equality", "close = 14", "close == 14"},
		{"equality after operator", "flag and k = 1.5", "flag and (k == 1.5)"},
		{"not equal", "period <> 14", "period != 14"},
		{"negative literal", "-5", "-5"},
		{"negation", "-close", "-close"},
		{"float literal", "2.50", "2.5"},
		{"integer literal", "007", "7"},
		{"offset", "close(-1)", "lag(close, -1)"},
		{"offset expression", "close(0) > close(-1)", "lag(close, 0) > lag(close, -1)"},
		{"plain call", "close()", "close"},
		{"window default offset", "avg(close, 20)", "avg(close, 20, 0)"},
		{"window offset", "max(high, 20, -1)", "max(high, 20, -1)"},
		{"rsi default", "rsi(14)", "rsi(14, 0)"},
		{"date without parens", "dayofweek == 1", "dayofweek() == 1"},
		{"date with parens", "month() > 6", "month() > 6"},
		{"custom", "half(close) > k", "half(close) > k"},
		{"ternary", "flag ? 1 : 2", "if (flag) { 1 } else { 2 }"},
		{"nested ternary", "flag ? 1 : flag ? 2 : 3", "if (flag) { 1 } else { if (flag) { 2 } else { 3 } }"},
		{"if", "if (close > open) { 1.0 } else { 0.0 }", "if (close > open) { 1.0 } else { 0.0 }"},
		{"else if", "if (flag) 1 else if (close > 1) 2 else 3", "if (flag) { 1 } else { if (close > 1) { 2 } else { 3 } }"},
		{"assignment", "k = 2.0; k * close", "k = 2.0; k * close"},
		{"declaration", "int n = 3; n + 1", "int n = 3; n + 1"},
		{"const declaration", "const float f = 0.5; close * f", "const float f = 0.5; close * f"},
		{"trailing semicolon", "k = 1.0;", "k = 1.0"},
		{"block", "{ int n = 1; n }", "int n = 1; n"},
		{"brace separated", "if (flag) { k = 1.0 } else { k = 2.0 } k", "if (flag) { k = 1.0 } else { k = 2.0 }; k"},
		{"for", "int s = 0; for (int i = 0; i < 3; i = i + 1) { s = s + i }; s",
			"int s = 0; for (int i = 0; i < 3; i = i + 1) { s = s + i }; s"},
		{"comments", "close # today\n> open // yesterday\n/* done */", "close > open"},
		{"string", "half(close) > 1 or \"x\" == \"x\"", `(half(close) > 1) or ("x" == "x")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := parse(t, tt.input)
			if got := expr.Root().String(); got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if !expr.Root().ValidTree() {
				t.Error("parsed tree has empty slots")
			}
			if expr.Checked() {
				t.Error("Parse must not type check")
			}
		})
	}
}

func TestParseDeclaredTypes(t *testing.T) {
	expr := parse(t, "int n = 3; n + period")
	var refs []*types.Node
	for n := range expr.Root().All() {
		if n.Kind == types.KindVariable {
			refs = append(refs, n)
		}
	}
	if len(refs) != 2 {
		t.Fatalf("found %d variable references, want 2", len(refs))
	}
	for _, r := range refs {
		if r.Decl != types.Integer {
			t.Errorf("%s declared as %s, want integer", r.Text, r.Decl)
		}
	}

	def := expr.Root().Child(0)
	if def.Kind != types.KindDefine || def.Text != "n" || def.Constant {
		t.Errorf("unexpected definition %+v", def)
	}

	custom := parse(t, "half(1)").Root()
	if custom.Sig == nil || custom.Sig.Result != types.Float || len(custom.Sig.Params) != 1 {
		t.Errorf("custom call signature = %v", custom.Sig)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  types.ErrorCode
		line  int
	}{
		{"empty", "", types.ErrSyntaxError, 1},
		{"only comment", "# nothing", types.ErrSyntaxError, 1},
		{"trailing operator", "close +", types.ErrSyntaxError, 1},
		{"trailing token", "close open", types.ErrSyntaxError, 1},
		{"second line", "close >\n>", types.ErrSyntaxError, 2},
		{"unknown identifier", "closing > 1", types.ErrUnknownIdentifier, 1},
		{"unknown function", "sma(close, 20)", types.ErrUnknownFunction, 1},
		{"missing paren", "(close > open", types.ErrExpectedToken, 1},
		{"missing else", "if (flag) { 1 }", types.ErrExpectedToken, 1},
		{"missing colon", "flag ? 1", types.ErrExpectedToken, 1},
		{"window arity", "avg(close)", types.ErrArgumentCount, 1},
		{"too many offsets", "close(1, 2)", types.ErrArgumentCount, 1},
		{"custom arity", "half(1, 2)", types.ErrArgumentCount, 1},
		{"builtin without call", "avg > 1", types.ErrSyntaxError, 1},
		{"custom without call", "half + 1", types.ErrSyntaxError, 1},
		{"variable called", "k(1)", types.ErrSyntaxError, 1},
		{"reserved declaration", "float close = 1.0", types.ErrSyntaxError, 1},
		{"redeclaration", "int k = 1", types.ErrSyntaxError, 1},
		{"nested declaration", "1 + int n = 2", types.ErrSyntaxError, 1},
		{"empty parens", "()", types.ErrSyntaxError, 1},
		{"empty block", "{}", types.ErrSyntaxError, 1},
		{"integer overflow", "99999999999999999999", types.ErrNumberFormat, 1},
		{"lexer", "close $ open", types.ErrUnexpectedChar, 1},
		{"unclosed comment", "close /* open", types.ErrSyntaxError, 1},
		{"bad escape", `"\q" == "q"`, types.ErrSyntaxError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.input, parser.WithVariables(testVariables(t)), parser.WithFunctions(half))
			if err == nil {
				t.Fatalf("Parse(%q) succeeded", tt.input)
			}
			ge, ok := types.AsError(err)
			if !ok {
				t.Fatalf("Parse(%q) error %T is not a *types.Error", tt.input, err)
			}
			if ge.Code != tt.code {
				t.Errorf("code = %s, want %s (%v)", ge.Code, tt.code, err)
			}
			if ge.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", ge.Line, tt.line, err)
			}
			if !types.IsParseFailure(err) {
				t.Error("not reported as a parse failure")
			}
		})
	}
}

func TestParseEndOfInputPosition(t *testing.T) {
	src := "close >  "
	_, err := parser.Parse(src)
	ge, ok := types.AsError(err)
	if !ok {
		t.Fatalf("unexpected error %v", err)
	}
	if ge.Position < len(strings.TrimSpace(src)) {
		t.Errorf("position %d is before the end of input", ge.Position)
	}
	if !strings.Contains(ge.Message, "end of expression") {
		t.Errorf("message = %q", ge.Message)
	}
}

func TestParseMaxDepth(t *testing.T) {
	deep := strings.Repeat("(", 40) + "1" + strings.Repeat(")", 40)
	if _, err := parser.Parse(deep); err != nil {
		t.Fatalf("default depth rejected 40 levels: %v", err)
	}
	_, err := parser.Parse(deep, parser.WithMaxDepth(10))
	if ge, ok := types.AsError(err); !ok || ge.Code != types.ErrTooDeep {
		t.Errorf("error = %v, want %s", err, types.ErrTooDeep)
	}
}

func TestParseRegistry(t *testing.T) {
	reg, err := functions.NewRegistry(half)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse("half(close)"); err == nil {
		t.Error("unregistered function accepted")
	}
	if _, err := parser.Parse("half(close)", parser.WithRegistry(reg)); err != nil {
		t.Errorf("registered function rejected: %v", err)
	}
}

func TestParseMetadataLines(t *testing.T) {
	expr := parse(t, "int n = 1;\nn = n + 1;\nn * close")
	root := expr.Root()
	// Statements nest to the left: ((def; assign); product).
	last := root.Child(1)
	if got := expr.Line(last); got != 3 {
		t.Errorf("line of %s = %d, want 3", last, got)
	}
	assign := root.Child(0).Child(1)
	if got := expr.Line(assign); got != 2 {
		t.Errorf("line of %s = %d, want 2", assign, got)
	}
}

// "=" assigns only when a declared variable starts a statement.
func TestParseAssignmentPosition(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		assigns int
	}{
		{"statement", "k = 2.0", 1},
		{"after separator", "close; k = 2.0", 1},
		{"block", "{ k = 2.0; k }", 1},
		{"if body", "if (flag) k = 1.0 else k = 2.0", 2},
		{"for header", "for (k = 0.0; k < 3; k = k + 1) { k }", 2},
		{"if condition", "if (flag = true) { 1 } else { 0 }", 0},
		{"argument", "half(k = 1.5)", 0},
		{"parentheses", "(k = 1.5)", 0},
		{"ternary branch", "flag ? k = 1.5 : false", 0},
		{"for condition", "for (int i = 0; flag = true; i = i + 1) { i }", 0},
		{"assigned value", "flag = k = 1.5", 1},
		{"quote field", "close = 14", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := parse(t, tt.input).Root()
			assigns, equals := 0, 0
			for n := range root.All() {
				switch {
				case n.Kind == types.KindAssign:
					assigns++
				case n.Kind == types.KindBinary && n.Op == types.OpEq:
					equals++
				}
			}
			if assigns != tt.assigns {
				t.Errorf("%s: %d assignments, want %d", root, assigns, tt.assigns)
			}
			if tt.assigns == 0 && equals == 0 {
				t.Errorf("%s: no comparison", root)
			}
		})
	}
}

func TestParseDeclarationPosition(t *testing.T) {
	for _, input := range []string{
		"(int n = 1)",
		"half(int n = 1)",
		"if (int n = 1) { 1 } else { 0 }",
		"flag ? int n = 1 : 0",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := parser.Parse(input, parser.WithVariables(testVariables(t)), parser.WithFunctions(half))
			if ge, ok := types.AsError(err); !ok || ge.Code != types.ErrSyntaxError {
				t.Errorf("error = %v, want %s", err, types.ErrSyntaxError)
			}
		})
	}
}
