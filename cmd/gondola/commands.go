package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/vjeantet/jodaTime"

	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/scan"
	"github.com/sandrolain/gondola/pkg/server"
	"github.com/sandrolain/gondola/pkg/types"
)

// -----------------------------------------------------------------------------
// check
// -----------------------------------------------------------------------------

func cmdCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	source, err := common.formula(fs)
	if err != nil {
		report(stderr, "", err)
		return 2
	}
	e, err := common.setup(context.Background())
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
	expr, err := e.compile(source, vars)
	if err != nil {
		report(stderr, source, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s\n%s\n", expr.Type(), expr.Root())
	return 0
}

// -----------------------------------------------------------------------------
// eval
// -----------------------------------------------------------------------------

func cmdEval(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	symbol := fs.String("symbol", "", "symbol to evaluate")
	day := fs.Int("day", -1, "trading day; negative counts from the last day")
	date := fs.String("date", "", "trading date, in the configured layout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	source, err := common.formula(fs)
	if err != nil {
		report(stderr, "", err)
		return 2
	}
	if *symbol == "" {
		report(stderr, "", fmt.Errorf("missing -symbol"))
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
	expr, err := e.compile(source, vars)
	if err != nil {
		report(stderr, source, err)
		return 1
	}

	sym := types.Symbol(strings.ToUpper(*symbol))
	src, err := e.quotes(ctx, []types.Symbol{sym})
	if err != nil {
		report(stderr, "", err)
		return 1
	}

	d := *day
	if *date != "" {
		t, err := jodaTime.Parse(e.conf.Quotes.DateLayout, *date)
		if err != nil {
			report(stderr, "", fmt.Errorf("date %q does not match %s", *date, e.conf.Quotes.DateLayout))
			return 2
		}
		var ok bool
		if d, ok = src.DayOf(sym, t); !ok {
			report(stderr, "", fmt.Errorf("no trading day of %s on or after %s", sym, *date))
			return 1
		}
	} else if d < 0 {
		d += src.Days(sym)
	}

	v, err := e.ev.Eval(ctx, expr, evaluator.Env{Variables: vars, Quotes: src, Symbol: sym, Day: d})
	if err != nil {
		report(stderr, source, err)
		return 1
	}
	fmt.Fprintln(stdout, types.FormatConstant(expr.Type().Underlying(), v))
	return 0
}

// -----------------------------------------------------------------------------
// scan
// -----------------------------------------------------------------------------

func cmdScan(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	symbols := fs.String("symbols", "", "comma separated symbols (default all)")
	from := fs.Int("from", 0, "first day; negative counts from the end")
	to := fs.Int("to", 0, "last day; 0 is the last day, negative counts from the end")
	last := fs.Int("last", 0, "scan only the last n days")
	matches := fs.Bool("matches", false, "print only points that read as true")
	workers := fs.Int("workers", 0, "parallel workers (default from configuration)")
	budget := fs.Duration("budget", 0, "time budget per symbol")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	source, err := common.formula(fs)
	if err != nil {
		report(stderr, "", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	expr, err := e.compile(source, vars)
	if err != nil {
		report(stderr, source, err)
		return 1
	}

	var syms []types.Symbol
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			syms = append(syms, types.Symbol(strings.ToUpper(s)))
		}
	}
	src, err := e.quotes(ctx, syms)
	if err != nil {
		report(stderr, "", err)
		return 1
	}

	opts := []scan.Option{
		scan.WithLogger(e.logger),
		scan.WithDateLayout(e.conf.Quotes.DateLayout),
		scan.WithBudget(e.conf.Scan.Budget),
	}
	if e.conf.Scan.Workers > 0 {
		opts = append(opts, scan.WithWorkers(e.conf.Scan.Workers))
	}
	if e.conf.Scan.MaxFailures > 0 {
		opts = append(opts, scan.WithMaxFailures(e.conf.Scan.MaxFailures))
	}
	if *workers > 0 {
		opts = append(opts, scan.WithWorkers(*workers))
	}
	if *budget > 0 {
		opts = append(opts, scan.WithBudget(*budget))
	}

	res, err := scan.New(e.ev, opts...).Run(ctx, expr, src, vars, scan.Request{
		Symbols:     syms,
		From:        *from,
		To:          *to,
		Last:        *last,
		MatchesOnly: *matches,
	})
	if err != nil {
		report(stderr, source, err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			report(stderr, "", err)
			return 1
		}
		return 0
	}
	printScan(stdout, expr.Type(), res)
	return 0
}

func printScan(w io.Writer, t types.Type, res *scan.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tDAY\tDATE\tVALUE")
	for _, p := range res.Points {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.Symbol, p.Day, p.Date, types.FormatConstant(t.Underlying(), p.Value))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d points, %d symbols, %d skipped in %s\n",
		len(res.Points), res.Symbols, res.Skipped, res.Elapsed.Round(time.Millisecond))
}

// -----------------------------------------------------------------------------
// serve
// -----------------------------------------------------------------------------

func cmdServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", "", "listen address (default from configuration)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := common.setup(ctx)
	if err != nil {
		report(stderr, "", err)
		return 1
	}
	defer e.close()

	src, err := e.quotes(ctx, nil)
	if err != nil {
		report(stderr, "", err)
		return 1
	}

	listen := e.conf.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	scanOpts := []scan.Option{
		scan.WithLogger(e.logger),
		scan.WithDateLayout(e.conf.Quotes.DateLayout),
		scan.WithBudget(e.conf.Scan.Budget),
	}
	if e.conf.Scan.Workers > 0 {
		scanOpts = append(scanOpts, scan.WithWorkers(e.conf.Scan.Workers))
	}
	srv := server.New(src,
		server.WithRegistry(e.registry),
		server.WithCache(e.cache),
		server.WithLogger(e.logger),
		server.WithMaxDepth(e.conf.Engine.MaxDepth),
		server.WithSimplify(!e.conf.Engine.NoSimplify),
		server.WithEvaluator(e.ev),
		server.WithScanner(scan.New(e.ev, scanOpts...)),
		server.WithDateLayout(e.conf.Quotes.DateLayout),
		server.WithDebug(e.conf.Server.Debug),
	)
	fmt.Fprintf(stdout, "serving %d symbols on %s\n", len(src.Symbols()), listen)
	if err := srv.Run(ctx, listen); err != nil {
		report(stderr, "", err)
		return 1
	}
	return 0
}
