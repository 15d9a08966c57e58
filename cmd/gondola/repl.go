package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/types"
)

const (
	historyFile = ".gondola_history"
	promptMain  = "gondola> "
	promptCont  = "     ... "
)

const replHelp = `Enter a formula to evaluate it at the current symbol and day.
Declarations (int n = 0) persist across lines.

  :symbol <name>   select the symbol
  :day <n>         select the day (negative counts from the end)
  :vars            list the variables
  :type <formula>  print the type of a formula
  :help            show this help
  :quit            leave
`

// session is the state of an interactive shell.
type session struct {
	env    *env
	quotes *quote.Memory
	vars   *types.Variables
	symbol types.Symbol
	day    int
	out    io.Writer
}

func cmdRepl(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	symbol := fs.String("symbol", "", "initial symbol")
	day := fs.Int("day", -1, "initial day; negative counts from the last day")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	e, err := common.setup(ctx)
	if err != nil {
		report(stderr, "", err)
		return 1
	}
	defer e.close()

	vars, err := common.variables()
	if err != nil {
		report(stderr, "", err)
		return 2
	}
	src, err := e.quotes(ctx, nil)
	if err != nil {
		report(stderr, "", err)
		return 1
	}

	s := &session{env: e, quotes: src, vars: vars, out: stdout}
	switch {
	case *symbol != "":
		s.symbol = types.Symbol(strings.ToUpper(*symbol))
	case len(src.Symbols()) > 0:
		s.symbol = src.Symbols()[0]
	}
	s.setDay(*day)

	fmt.Fprintf(stdout, "Gondola %s. Type :help for help.\n", gondola.Version())

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		code, ok := s.read(ln)
		if !ok {
			fmt.Fprintln(stdout)
			return 0
		}
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		if !s.exec(ctx, code, stderr) {
			return 0
		}
	}
}

// read collects lines until they form a formula that does not end
// prematurely.
func (s *session) read(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := s.env.compile(src, s.vars); incomplete(src, err) {
			continue
		}
		return src, true
	}
}

// incomplete reports whether err is a parse failure at the end of src,
// which more input may fix.
func incomplete(src string, err error) bool {
	ge, ok := types.AsError(err)
	if !ok || ge.Category() != types.CategoryParse {
		return false
	}
	return ge.Position >= len(strings.TrimRight(src, " \t\r\n"))
}

// exec runs one input and reports whether the shell continues.
func (s *session) exec(ctx context.Context, code string, stderr io.Writer) bool {
	if strings.HasPrefix(code, ":") {
		return s.command(code, stderr)
	}

	expr, err := s.env.compile(code, s.vars)
	if err != nil {
		report(stderr, code, err)
		return true
	}
	v, err := s.env.ev.Eval(ctx, expr, evaluator.Env{
		Variables: s.vars,
		Quotes:    s.quotes,
		Symbol:    s.symbol,
		Day:       s.day,
	})
	if err != nil {
		report(stderr, code, err)
		return true
	}
	fmt.Fprintf(s.out, "%s (%s)\n", types.FormatConstant(expr.Type().Underlying(), v), expr.Type())
	return true
}

func (s *session) command(code string, stderr io.Writer) bool {
	name, arg, _ := strings.Cut(code, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case ":quit", ":q", ":exit":
		return false
	case ":help":
		fmt.Fprint(s.out, replHelp)
	case ":symbol":
		if arg == "" {
			fmt.Fprintf(s.out, "%s (%d days)\n", s.symbol, s.quotes.Days(s.symbol))
			break
		}
		s.symbol = types.Symbol(strings.ToUpper(arg))
		s.setDay(-1)
		fmt.Fprintf(s.out, "%s, day %d\n", s.symbol, s.day)
	case ":day":
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(stderr, "invalid day %q\n", arg)
			break
		}
		s.setDay(n)
		fmt.Fprintf(s.out, "day %d\n", s.day)
	case ":vars":
		for _, name := range s.vars.Names() {
			v, _ := s.vars.Get(name)
			fmt.Fprintf(s.out, "%s %s = %s\n", v.Type, name, types.FormatConstant(v.Type, v.Value))
		}
	case ":type":
		expr, err := s.env.compile(arg, s.vars)
		if err != nil {
			report(stderr, arg, err)
			break
		}
		fmt.Fprintln(s.out, expr.Type())
	default:
		fmt.Fprintf(stderr, "unknown command %s. Type :help for help.\n", name)
	}
	return true
}

func (s *session) setDay(day int) {
	if day < 0 {
		day += s.quotes.Days(s.symbol)
	}
	s.day = day
}
