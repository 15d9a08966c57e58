package evaluator_test

import (
	"context"
	"testing"

	"github.com/sandrolain/gondola/pkg/evaluator"
)

func BenchmarkEvalWindow(b *testing.B) {
	src := testQuotes(b)
	vars := testVariables()
	expr := compile(b, "avg(close, 5) > avg(close, 3, -1) and rsi(4) > 50", vars)
	ev := evaluator.New()
	env := evaluator.Env{Variables: vars, Quotes: src, Symbol: symbol, Day: 9}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Eval(context.Background(), expr, env); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvalLoop(b *testing.B) {
	vars := testVariables()
	expr := compile(b, "int s = 0; for (int i = 0; i < 100; i = i + 1) { s = s + i % 7 }; s", vars)
	ev := evaluator.New()
	env := evaluator.Env{Variables: vars}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ev.Eval(context.Background(), expr, env); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvalParallel(b *testing.B) {
	src := testQuotes(b)
	template := testVariables()
	expr := compile(b, "float m = avg(close, 3); m > close(-1)", template)
	ev := evaluator.New()

	b.RunParallel(func(pb *testing.PB) {
		env := evaluator.Env{Variables: template.Clone(), Quotes: src, Symbol: symbol, Day: 9}
		for pb.Next() {
			if _, err := ev.Eval(context.Background(), expr, env); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
