//go:build wasip1

// Command gondola-wasm-wasi is the WASI (wasip1) entrypoint for use from any
// language that supports the WebAssembly System Interface.
//
// Protocol: single JSON object on stdin → single JSON object on stdout.
//
//	stdin:  {"formula": "<gondola>", "bars": [...], "day": <int>, "variables": [...]}
//	stdout: {"value": <number>, "type": "<type>", "truth": <bool>, "day": <int>}   on success
//	        {"error": "<message>", "code": "<G0xxx>"}                             on failure (exit code 1)
//
// Build:
//
//	GOOS=wasip1 GOARCH=wasm go build -o gondola.wasm ./cmd/wasm/wasi/
//
// Usage with wasmtime CLI:
//
//	echo '{"formula":"2 + 3"}' | wasmtime gondola.wasm
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/sandrolain/gondola/pkg/ext"
	"github.com/sandrolain/gondola/pkg/wire"
)

func writeResponse(r wire.Response, exitCode int) {
	_ = json.NewEncoder(os.Stdout).Encode(r)
	os.Exit(exitCode)
}

func main() {
	var req wire.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(wire.Response{Error: "invalid request JSON: " + err.Error()}, 1)
	}

	reg, err := ext.Registry()
	if err != nil {
		writeResponse(wire.Failed(err), 1)
	}

	resp := wire.Evaluate(context.Background(), req, reg)
	if resp.Error != "" {
		writeResponse(resp, 1)
	}
	writeResponse(resp, 0)
}
