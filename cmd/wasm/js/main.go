//go:build js && wasm

// Command gondola-wasm-js is the WebAssembly entrypoint for browser and Node.js.
//
// It exposes a global `gondola` object with the following API:
//
//	gondola.version()            → string
//	gondola.check(formula)       → type name  (throws on error)
//	gondola.eval(requestJSON)    → responseJSON
//
// and the shortcut `gondolaEval(requestJSON)`, equal to gondola.eval. The
// request and response are the JSON forms of wire.Request and
// wire.Response; failures are reported in the "error" and "code" fields
// of the response.
//
// Build:
//
//	GOOS=js GOARCH=wasm go build -o gondola.wasm ./cmd/wasm/js/
//
// Usage in Node.js:
//
//	const res = JSON.parse(gondolaEval(JSON.stringify({
//	  formula: "close > open",
//	  bars: [{date: "2024-01-02", open: 9.5, high: 10.2, low: 9.4, close: 10, volume: 1000}],
//	})))
//	console.log(res.truth) // true
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/pkg/ext"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/wire"
)

var registry *functions.Registry

// jsThrow panics with a JS Error so the caller receives a thrown exception.
func jsThrow(msg string) {
	panic(js.Global().Get("Error").New(msg))
}

// jsEval implements gondola.eval(requestJSON) → responseJSON.
func jsEval(_ js.Value, args []js.Value) interface{} {
	var resp wire.Response
	if len(args) < 1 {
		resp = wire.Response{Error: "gondola.eval requires 1 argument: request (JSON string)"}
	} else {
		var req wire.Request
		if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
			resp = wire.Response{Error: fmt.Sprintf("invalid request JSON: %v", err)}
		} else {
			resp = wire.Evaluate(context.Background(), req, registry)
		}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		jsThrow(fmt.Sprintf("gondola.eval: marshal response: %v", err))
	}
	return string(out)
}

// jsCheck implements gondola.check(formula) → type name.
func jsCheck(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		jsThrow("gondola.check requires 1 argument: formula (string)")
	}
	t, err := gondola.Check(args[0].String(), gondola.WithRegistry(registry))
	if err != nil {
		jsThrow(fmt.Sprintf("gondola.check: %v", err))
	}
	return t.String()
}

func main() {
	var err error
	if registry, err = ext.Registry(); err != nil {
		panic(err)
	}

	evalFn := js.FuncOf(jsEval)
	api := map[string]interface{}{
		"eval":  evalFn,
		"check": js.FuncOf(jsCheck),
		"version": js.FuncOf(func(_ js.Value, _ []js.Value) interface{} {
			return gondola.Version()
		}),
	}
	js.Global().Set("gondola", js.ValueOf(api))
	js.Global().Set("gondolaEval", evalFn)

	// Block forever: the JS event loop owns execution from here.
	select {}
}
