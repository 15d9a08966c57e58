// Package scan evaluates one compiled formula over many symbols and days.
//
// A Scanner fans symbols out to a pool of workers. Each worker owns a
// clone of the variable store, so formulas that keep state across days
// (counters, running extremes) see the days of one symbol in order and
// never share state with another symbol. Evaluation failures of a single
// point (a window reaching before the first day, a division by zero) are
// counted and skipped; any other error aborts the scan.
//
// # Example
//
//	sc := scan.New(evaluator.New(), scan.WithWorkers(8))
//	res, err := sc.Run(ctx, expr, src, vars, scan.Request{Last: 1, MatchesOnly: true})
//	for _, p := range res.Points {
//	    fmt.Println(p.Symbol, p.Date, p.Value)
//	}
package scan

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/types"
	"github.com/vjeantet/jodaTime"
)

// DefaultDateLayout is the Joda layout of Point.Date.
const DefaultDateLayout = "yyyy-MM-dd"

// DefaultMaxFailures caps the failures reported in a Result.
const DefaultMaxFailures = 100

// Lister is implemented by quote sources that can enumerate their symbols.
type Lister interface {
	Symbols() []types.Symbol
}

// Request selects the evaluation points of a scan.
type Request struct {
	// Symbols to scan. Empty means every symbol of a Lister source.
	Symbols []types.Symbol
	// From is the first trading day scanned. Negative values count from
	// the end: -1 is the last day.
	From int
	// To is the last trading day scanned, inclusive, with the same
	// convention. Zero means the last day, so the zero Request scans
	// every day.
	To int
	// Last, when positive, overrides From and To with the last Last days.
	Last int
	// MatchesOnly keeps only the points whose value reads as true.
	MatchesOnly bool
}

// span returns the inclusive day range for a symbol with days days.
func (r Request) span(days int) (int, int) {
	if r.Last > 0 {
		return max(days-r.Last, 0), days - 1
	}
	from, to := r.From, r.To
	if from < 0 {
		from += days
	}
	switch {
	case to == 0:
		to = days - 1
	case to < 0:
		to += days
	}
	return max(from, 0), min(to, days-1)
}

// Point is one evaluated (symbol, day).
type Point struct {
	Symbol types.Symbol `json:"symbol"`
	Day    int          `json:"day"`
	Date   string       `json:"date,omitempty"`
	Value  float64      `json:"value"`
}

// Failure is a skipped evaluation point.
type Failure struct {
	Symbol  types.Symbol    `json:"symbol"`
	Day     int             `json:"day"`
	Code    types.ErrorCode `json:"code,omitempty"`
	Message string          `json:"message"`
}

// Result is the outcome of a scan.
type Result struct {
	Points   []Point       `json:"points"`
	Skipped  int           `json:"skipped"`
	Failures []Failure     `json:"failures,omitempty"`
	Symbols  int           `json:"symbols"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Options configures a Scanner.
type Options struct {
	// Workers is the number of symbols evaluated in parallel.
	Workers int
	// Budget bounds the time spent on one symbol. Zero means no bound.
	Budget time.Duration
	// DateLayout is the Joda layout used to render dates of dated sources.
	DateLayout  string
	MaxFailures int
	Logger      *slog.Logger
}

// Option configures a Scanner.
type Option func(*Options)

// WithWorkers sets the number of parallel workers.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithBudget bounds the time spent on one symbol.
func WithBudget(d time.Duration) Option {
	return func(o *Options) {
		o.Budget = d
	}
}

// WithDateLayout sets the Joda layout of Point.Date.
func WithDateLayout(layout string) Option {
	return func(o *Options) {
		o.DateLayout = layout
	}
}

// WithMaxFailures caps the failures kept in a Result.
func WithMaxFailures(n int) Option {
	return func(o *Options) {
		o.MaxFailures = n
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Scanner runs scans. It is safe for concurrent use.
type Scanner struct {
	ev   *evaluator.Evaluator
	opts Options
}

// New creates a Scanner evaluating with ev.
func New(ev *evaluator.Evaluator, opts ...Option) *Scanner {
	options := Options{
		Workers:     defaultWorkers,
		DateLayout:  DefaultDateLayout,
		MaxFailures: DefaultMaxFailures,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if ev == nil {
		ev = evaluator.New(evaluator.WithLogger(options.Logger))
	}
	return &Scanner{ev: ev, opts: options}
}

// symbolResult is what a worker produces for one symbol.
type symbolResult struct {
	points   []Point
	skipped  int
	failures []Failure
}

// Run evaluates expr for every requested symbol and day of src. vars is
// the template store cloned for each symbol; it is never written.
func (s *Scanner) Run(ctx context.Context, expr *types.Expression, src types.QuoteSource, vars *types.Variables, req Request) (*Result, error) {
	if expr == nil || !expr.Checked() {
		return nil, errors.New("scan: expression is not compiled")
	}
	if src == nil {
		return nil, errors.New("scan: no quote source")
	}
	symbols := req.Symbols
	if len(symbols) == 0 {
		if l, ok := src.(Lister); ok {
			symbols = l.Symbols()
		}
	}
	if len(symbols) == 0 {
		return nil, errors.New("scan: no symbols")
	}

	start := time.Now()
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		res      = &Result{Symbols: len(symbols)}
	)

	jobs := make(chan types.Symbol)
	workers := min(s.opts.Workers, len(symbols))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				r, err := s.scanSymbol(ctx, expr, src, vars, symbol, req)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = errors.Wrapf(err, "scanning %s", symbol)
					}
					cancel()
				} else {
					s.merge(res, r)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, symbol := range symbols {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, errors.Wrap(err, "scan interrupted")
	}

	sort.Slice(res.Points, func(i, j int) bool {
		a, b := res.Points[i], res.Points[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Day < b.Day
	})
	sort.SliceStable(res.Failures, func(i, j int) bool {
		a, b := res.Failures[i], res.Failures[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Day < b.Day
	})
	res.Elapsed = time.Since(start)

	s.opts.Logger.Debug("scan completed",
		"symbols", res.Symbols,
		"points", len(res.Points),
		"skipped", res.Skipped,
		"elapsed", res.Elapsed)
	return res, nil
}

// merge must be called with the result lock held.
func (s *Scanner) merge(res *Result, r *symbolResult) {
	res.Points = append(res.Points, r.points...)
	res.Skipped += r.skipped
	for _, f := range r.failures {
		if len(res.Failures) >= s.opts.MaxFailures {
			break
		}
		res.Failures = append(res.Failures, f)
	}
}

func (s *Scanner) scanSymbol(ctx context.Context, expr *types.Expression, src types.QuoteSource, vars *types.Variables, symbol types.Symbol, req Request) (*symbolResult, error) {
	symCtx := ctx
	if s.opts.Budget > 0 {
		var cancel context.CancelFunc
		symCtx, cancel = context.WithTimeout(ctx, s.opts.Budget)
		defer cancel()
	}

	local := vars.Clone()
	dated, _ := src.(types.DatedSource)
	r := &symbolResult{}

	from, to := req.span(src.Days(symbol))
	for day := from; day <= to; day++ {
		if err := symCtx.Err(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.skipped += to - day + 1
			r.failures = append(r.failures, Failure{
				Symbol:  symbol,
				Day:     day,
				Code:    types.ErrEvaluationCancelled,
				Message: "time budget exceeded",
			})
			break
		}

		v, err := s.ev.Eval(symCtx, expr, evaluator.Env{
			Variables: local,
			Quotes:    src,
			Symbol:    symbol,
			Day:       day,
		})
		if err != nil {
			if !types.IsEvaluationFailure(err) {
				return nil, err
			}
			r.skipped++
			f := Failure{Symbol: symbol, Day: day, Message: err.Error()}
			if ge, ok := types.AsError(err); ok {
				f.Code = ge.Code
				f.Message = ge.Message
			}
			if len(r.failures) < s.opts.MaxFailures {
				r.failures = append(r.failures, f)
			}
			continue
		}

		if req.MatchesOnly && !types.IsTrue(v) {
			continue
		}
		p := Point{Symbol: symbol, Day: day, Value: v}
		if dated != nil {
			if t, err := dated.Date(symbol, day); err == nil {
				p.Date = jodaTime.Format(s.opts.DateLayout, t)
			}
		}
		r.points = append(r.points, p)
	}

	s.opts.Logger.Debug("symbol scanned",
		"symbol", symbol,
		"points", len(r.points),
		"skipped", r.skipped)
	return r, nil
}
