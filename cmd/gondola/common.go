package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sandrolain/gondola"
	"github.com/sandrolain/gondola/internal/config"
	"github.com/sandrolain/gondola/internal/logging"
	"github.com/sandrolain/gondola/pkg/cache"
	"github.com/sandrolain/gondola/pkg/evaluator"
	"github.com/sandrolain/gondola/pkg/ext"
	"github.com/sandrolain/gondola/pkg/ext/extwasm"
	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/quote/csvquote"
	"github.com/sandrolain/gondola/pkg/quote/mongoquote"
	"github.com/sandrolain/gondola/pkg/types"
)

// varDecl is one -var or -const flag.
type varDecl struct {
	name     string
	typ      types.Type
	value    float64
	constant bool
}

// varFlags collects -var and -const flags.
type varFlags struct {
	decls    *[]varDecl
	constant bool
}

func (f varFlags) String() string { return "" }

// Set parses name:type=value; the value defaults to zero.
func (f varFlags) Set(s string) error {
	d, err := parseVar(s)
	if err != nil {
		return err
	}
	d.constant = f.constant
	*f.decls = append(*f.decls, d)
	return nil
}

func parseVar(s string) (varDecl, error) {
	decl, value, hasValue := strings.Cut(s, "=")
	name, typ, ok := strings.Cut(decl, ":")
	if !ok || name == "" {
		return varDecl{}, errors.Errorf("variable %q: expected name:type=value", s)
	}
	t, ok := types.ParseType(typ)
	if !ok {
		return varDecl{}, errors.Errorf("variable %s: unknown type %q", name, typ)
	}
	d := varDecl{name: name, typ: t}
	if hasValue {
		switch strings.ToLower(value) {
		case "true":
			d.value = types.True
		case "false":
			d.value = types.False
		default:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return varDecl{}, errors.Wrapf(err, "variable %s", name)
			}
			d.value = v
		}
	}
	return d, nil
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath  string
	csvDir      string
	wasmPath    string
	formulaFile string
	decls       []varDecl
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.csvDir, "csv", "", "directory of CSV quote files")
	fs.StringVar(&c.wasmPath, "wasm", "", "WebAssembly module exporting custom functions")
	fs.StringVar(&c.formulaFile, "f", "", "read the formula from file")
	fs.Var(varFlags{decls: &c.decls}, "var", "declare a variable name:type=value")
	fs.Var(varFlags{decls: &c.decls, constant: true}, "const", "declare a constant name:type=value")
}

// formula returns the formula of the command line.
func (c *commonFlags) formula(fs *flag.FlagSet) (string, error) {
	if c.formulaFile != "" {
		data, err := os.ReadFile(c.formulaFile)
		if err != nil {
			return "", errors.Wrap(err, "reading formula")
		}
		return string(data), nil
	}
	if fs.NArg() == 0 {
		return "", errors.New("missing formula")
	}
	return strings.Join(fs.Args(), " "), nil
}

func (c *commonFlags) variables() (*types.Variables, error) {
	vars := types.NewVariables()
	for _, d := range c.decls {
		var err error
		if d.constant {
			err = vars.AddConstant(d.name, d.typ, d.value)
		} else {
			err = vars.Add(d.name, d.typ, d.value)
		}
		if err != nil {
			return nil, err
		}
	}
	return vars, nil
}

// env is what a command needs to compile and evaluate.
type env struct {
	conf     config.Config
	logger   *slog.Logger
	registry *functions.Registry
	cache    *cache.Cache
	ev       *evaluator.Evaluator
	closers  []func()
}

// setup loads the configuration, installs the logger and collects the
// custom functions.
func (c *commonFlags) setup(ctx context.Context) (*env, error) {
	conf, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.csvDir != "" {
		conf.Quotes.Source = config.SourceCSV
		conf.Quotes.CSVDir = c.csvDir
	}

	logger, logCloser := logging.Init(conf.Logging)
	e := &env{conf: conf, logger: logger}
	e.closers = append(e.closers, func() { _ = logCloser.Close() })

	defs := ext.All()
	if c.wasmPath != "" {
		bin, err := os.ReadFile(c.wasmPath)
		if err != nil {
			e.close()
			return nil, errors.Wrap(err, "reading wasm module")
		}
		mod, err := extwasm.Load(ctx, bin)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = mod.Close(context.Background()) })
		defs = append(defs, mod.Definitions()...)
		logger.Debug("wasm functions loaded", "module", c.wasmPath, "functions", len(mod.Definitions()))
	}
	if e.registry, err = functions.NewRegistry(defs...); err != nil {
		e.close()
		return nil, err
	}

	if conf.Engine.CacheSize > 0 {
		e.cache = cache.New(conf.Engine.CacheSize)
	}
	e.ev = evaluator.New(
		evaluator.WithRegistry(e.registry),
		evaluator.WithLogger(logger),
		evaluator.WithMaxIterations(conf.Engine.MaxIterations),
	)
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// compile compiles source with the configured limits.
func (e *env) compile(source string, vars *types.Variables) (*types.Expression, error) {
	opts := []gondola.Option{
		gondola.WithVariables(vars),
		gondola.WithRegistry(e.registry),
		gondola.WithMaxDepth(e.conf.Engine.MaxDepth),
		gondola.WithSimplify(!e.conf.Engine.NoSimplify),
	}
	if e.cache != nil {
		opts = append(opts, gondola.WithCache(e.cache))
	}
	return gondola.Compile(source, opts...)
}

// quotes loads the configured quote source. symbols restricts a Mongo
// load; CSV directories are always read whole.
func (e *env) quotes(ctx context.Context, symbols []types.Symbol) (*quote.Memory, error) {
	start := time.Now()
	src := quote.NewMemory()
	q := e.conf.Quotes

	switch q.Source {
	case config.SourceMongo:
		loader, err := mongoquote.Connect(mongoquote.Config{
			URI:         q.Mongo.URI,
			Database:    q.Mongo.Database,
			Collection:  q.Mongo.Collection,
			Timeout:     q.Mongo.Timeout,
			MaxPoolSize: q.Mongo.MaxPoolSize,
		})
		if err != nil {
			return nil, err
		}
		defer func() { _ = loader.Close(context.Background()) }()
		if err := loader.Load(ctx, src, symbols...); err != nil {
			return nil, err
		}
	default:
		if _, err := csvquote.LoadDir(src, q.CSVDir, csvquote.Options{DateLayout: q.DateLayout}); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("quotes loaded",
		"source", q.Source,
		"symbols", len(src.Symbols()),
		"elapsed", time.Since(start))
	return src, nil
}

// report prints err, with the source line for Gondola errors.
func report(w io.Writer, source string, err error) {
	ge, ok := types.AsError(err)
	if !ok || ge.Line <= 0 {
		fmt.Fprintf(w, "%s: %v\n", appName, err)
		return
	}
	fmt.Fprintf(w, "%s: %s: %v\n", appName, ge.Category(), err)
	lines := strings.Split(source, "\n")
	if ge.Line <= len(lines) {
		fmt.Fprintf(w, "  %d | %s\n", ge.Line, lines[ge.Line-1])
	}
}
