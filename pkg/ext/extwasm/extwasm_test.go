package extwasm_test

import (
	"context"
	"testing"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/ext/extwasm"
	"github.com/sandrolain/gondola/pkg/types"
)

// arith exports add(f64, f64) f64 and half(f64) f64.
var arith = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section
	0x01, 0x0c, 0x02,
	0x60, 0x02, 0x7c, 0x7c, 0x01, 0x7c,
	0x60, 0x01, 0x7c, 0x01, 0x7c,
	// function section
	0x03, 0x03, 0x02, 0x00, 0x01,
	// export section
	0x07, 0x0e, 0x02,
	0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x04, 'h', 'a', 'l', 'f', 0x00, 0x01,
	// code section
	0x0a, 0x18, 0x02,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0xa0, 0x0b,
	0x0e, 0x00, 0x20, 0x00, 0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x40, 0xa3, 0x0b,
}

func load(t *testing.T, opts ...extwasm.Option) *extwasm.Module {
	t.Helper()
	ctx := context.Background()
	m, err := extwasm.Load(ctx, arith, opts...)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(ctx) })
	return m
}

func TestDefinitions(t *testing.T) {
	m := load(t, extwasm.WithPrefix("w_"))
	defs := m.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	want := []struct {
		name  string
		arity int
	}{
		{"w_add", 2},
		{"w_half", 1},
	}
	for i, w := range want {
		if defs[i].Name != w.name {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, w.name)
		}
		if len(defs[i].Params) != w.arity {
			t.Errorf("%s arity = %d, want %d", w.name, len(defs[i].Params), w.arity)
		}
		if defs[i].Result != types.Float {
			t.Errorf("%s result = %s, want Float", w.name, defs[i].Result)
		}
	}
}

func TestCall(t *testing.T) {
	m := load(t)
	ctx := context.Background()

	got, err := m.Call(ctx, "add", 1.5, 2.25)
	if err != nil {
		t.Fatalf("add error: %v", err)
	}
	if got != 3.75 {
		t.Errorf("add = %v, want 3.75", got)
	}

	if _, err := m.Call(ctx, "missing", 1); err == nil {
		t.Error("expected error for missing export")
	}
}

func TestFormula(t *testing.T) {
	m := load(t)
	defs := m.Definitions()

	expr, err := gondola.Compile("half(add(3, 5)) + 1", gondola.WithFunctions(defs...))
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	v, err := evaluator.New(evaluator.WithFunctions(defs...)).Eval(context.Background(), expr, evaluator.Env{})
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if v != 5 {
		t.Errorf("got %v, want 5", v)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	m, err := extwasm.Load(ctx, arith)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if _, err := m.Call(ctx, "half", 4); err == nil {
		t.Error("expected error after Close")
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := extwasm.Load(context.Background(), []byte("not wasm")); err == nil {
		t.Error("expected error for invalid module")
	}
}
