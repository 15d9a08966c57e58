// Package server exposes Gondola over HTTP.
//
// Routes:
//
//	GET  /v1/health  liveness and cache counters
//	POST /v1/check   {"formula": ...} -> {"type": ...}
//	POST /v1/eval    {"formula": ..., "symbol": ..., "day": ...} -> {"value": ...}
//	POST /v1/scan    {"formula": ..., "symbols": [...], "last": 5} -> scan.Result
//
// Failures are answered with an ErrorResponse carrying the Gondola error
// code: 400 for parse and type failures, 422 for evaluation failures.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/pkg/cache"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/scan"
	"github.com/sandrolain/gondola/pkg/types"
)

// Options configures a Server.
type Options struct {
	Cache      *cache.Cache
	Registry   *functions.Registry
	Logger     *slog.Logger
	MaxDepth   int
	NoSimplify bool
	// Evaluator and Scanner default to ones built from Registry and
	// Logger.
	Evaluator *evaluator.Evaluator
	Scanner   *scan.Scanner
	// DateLayout is the Joda layout of dates in eval requests.
	DateLayout string
	Debug      bool
}

// Option configures a Server.
type Option func(*Options)

// WithCache shares compiled formulas across requests.
func WithCache(c *cache.Cache) Option {
	return func(o *Options) { o.Cache = c }
}

// WithRegistry makes the custom functions of r callable.
func WithRegistry(r *functions.Registry) Option {
	return func(o *Options) { o.Registry = r }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMaxDepth sets the parser nesting limit.
func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

// WithSimplify enables or disables simplification of compiled formulas.
func WithSimplify(enabled bool) Option {
	return func(o *Options) { o.NoSimplify = !enabled }
}

// WithEvaluator sets the evaluator of eval requests.
func WithEvaluator(ev *evaluator.Evaluator) Option {
	return func(o *Options) { o.Evaluator = ev }
}

// WithScanner sets the scanner of scan requests.
func WithScanner(sc *scan.Scanner) Option {
	return func(o *Options) { o.Scanner = sc }
}

// WithDateLayout sets the Joda layout of request dates.
func WithDateLayout(layout string) Option {
	return func(o *Options) { o.DateLayout = layout }
}

// WithDebug runs gin in debug mode.
func WithDebug(enabled bool) Option {
	return func(o *Options) { o.Debug = enabled }
}

// Server answers Gondola requests against one quote source.
type Server struct {
	quotes  types.QuoteSource
	opts    Options
	logger  *slog.Logger
	ev      *evaluator.Evaluator
	scanner *scan.Scanner
	router  *gin.Engine
	started time.Time
}

// New creates a Server over quotes.
func New(quotes types.QuoteSource, opts ...Option) *Server {
	o := Options{DateLayout: scan.DefaultDateLayout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registry == nil {
		o.Registry, _ = functions.NewRegistry()
	}
	if o.Evaluator == nil {
		o.Evaluator = evaluator.New(evaluator.WithRegistry(o.Registry), evaluator.WithLogger(o.Logger))
	}
	if o.Scanner == nil {
		o.Scanner = scan.New(o.Evaluator, scan.WithLogger(o.Logger), scan.WithDateLayout(o.DateLayout))
	}

	s := &Server{
		quotes:  quotes,
		opts:    o,
		logger:  o.Logger,
		ev:      o.Evaluator,
		scanner: o.Scanner,
		started: time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	if s.opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/v1")
	v1.GET("/health", s.health)
	v1.POST("/check", s.check)
	v1.POST("/eval", s.eval)
	v1.POST("/scan", s.scan)
	return router
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting gondola server", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down gondola server")
		return errors.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	}
}

// requestLogger logs every request through slog.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

// compile compiles formula with the declarations of vars.
func (s *Server) compile(formula string, vars *types.Variables) (*types.Expression, error) {
	opts := []gondola.Option{
		gondola.WithVariables(vars),
		gondola.WithRegistry(s.opts.Registry),
		gondola.WithSimplify(!s.opts.NoSimplify),
	}
	if s.opts.Cache != nil {
		opts = append(opts, gondola.WithCache(s.opts.Cache))
	}
	if s.opts.MaxDepth > 0 {
		opts = append(opts, gondola.WithMaxDepth(s.opts.MaxDepth))
	}
	return gondola.Compile(formula, opts...)
}
