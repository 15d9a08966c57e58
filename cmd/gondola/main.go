// Command gondola checks, evaluates and scans Gondola formulas.
//
//	gondola check 'avg(close, 20) > avg(close, 50)'
//	gondola eval -symbol ACME 'rsi(14)'
//	gondola scan -last 1 -matches 'close > max(high, 20, -1)'
//	gondola repl -symbol ACME
//	gondola serve -addr :8080
//
// Quotes come from the source selected by the configuration file (see
// internal/config); -csv overrides it with a directory of CSV files.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sandrolain/gondola"
)

const appName = "gondola"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "check":
		return cmdCheck(rest, stdout, stderr)
	case "eval":
		return cmdEval(rest, stdout, stderr)
	case "scan":
		return cmdScan(rest, stdout, stderr)
	case "repl":
		return cmdRepl(rest, stdout, stderr)
	case "serve":
		return cmdServe(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, gondola.Version())
		return 0
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "%s: unknown command %q\n", appName, cmd)
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Gondola %s

Usage:
  %s check [flags] <formula>     Type check a formula and print its simplified form.
  %s eval  [flags] <formula>     Evaluate a formula for one symbol and day.
  %s scan  [flags] <formula>     Evaluate a formula over symbols and days.
  %s repl  [flags]               Start the interactive shell.
  %s serve [flags]               Serve the HTTP API.
  %s version                     Print the version.

Common flags:
  -config <file>                 YAML configuration (default $GONDOLA_CONFIG)
  -csv <dir>                     Load quotes from the CSV files of dir
  -var name:type=value           Declare a variable (repeatable)
  -const name:type=value         Declare a constant (repeatable)
  -wasm <file>                   Load custom functions from a WebAssembly module
  -f <file>                      Read the formula from file

`, gondola.Version(), appName, appName, appName, appName, appName, appName)
}
