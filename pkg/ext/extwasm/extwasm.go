// Package extwasm exposes functions exported by a WebAssembly module as
// Gondola custom functions.
//
// Every exported function whose parameters and results are all f64, with
// exactly one result, becomes a Definition taking Numeric operands and
// returning Float. Other exports are ignored. The module runs inside a
// wazero runtime with no host imports, so it cannot reach the file system
// or the network.
//
// # Example
//
//	mod, err := extwasm.Load(ctx, bin, extwasm.WithPrefix("w_"))
//	if err != nil {
//	    return err
//	}
//	defer mod.Close(ctx)
//	expr, err := gondola.Compile("w_smooth(close) > open",
//	    gondola.WithFunctions(mod.Definitions()...))
package extwasm

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/gondola/pkg/functions"
	"github.com/sandrolain/gondola/pkg/types"
)

// Options configures Load.
type Options struct {
	// Name is the module name given to the runtime.
	Name string
	// Prefix is prepended to every exported name.
	Prefix string
	// MemoryLimitPages caps the linear memory in 64KiB pages. Zero keeps
	// the runtime default.
	MemoryLimitPages uint32
}

// Option configures Load.
type Option func(*Options)

// WithName sets the module name.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithPrefix prefixes the generated function names.
func WithPrefix(prefix string) Option {
	return func(o *Options) { o.Prefix = prefix }
}

// WithMemoryLimitPages caps the module memory.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *Options) { o.MemoryLimitPages = pages }
}

// Module is an instantiated WebAssembly module. Calls into the module are
// serialized: a wasm instance is single threaded.
type Module struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  api.Module
	defs    []functions.Definition
	closed  bool
}

// Load compiles and instantiates wasm. The returned module must be closed
// to release the runtime.
func Load(ctx context.Context, wasm []byte, opts ...Option) (*Module, error) {
	o := Options{Name: "gondola-ext"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := wazero.NewRuntimeConfig()
	if o.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "compile wasm module")
	}
	inst, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(o.Name))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "instantiate wasm module")
	}

	m := &Module{runtime: rt, module: inst}

	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := exports[name]
		if !numeric(def) {
			continue
		}
		m.defs = append(m.defs, m.definition(o.Prefix+name, name, len(def.ParamTypes())))
	}
	return m, nil
}

// numeric reports whether fn maps f64 operands to a single f64.
func numeric(fn api.FunctionDefinition) bool {
	res := fn.ResultTypes()
	if len(res) != 1 || res[0] != api.ValueTypeF64 {
		return false
	}
	for _, p := range fn.ParamTypes() {
		if p != api.ValueTypeF64 {
			return false
		}
	}
	return true
}

func (m *Module) definition(name, export string, arity int) functions.Definition {
	params := make([]types.Type, arity)
	for i := range params {
		params[i] = types.Numeric
	}
	return functions.Definition{
		Name:   name,
		Params: params,
		Result: types.Float,
		Fn: func(ctx context.Context, args ...float64) (float64, error) {
			return m.Call(ctx, export, args...)
		},
	}
}

// Definitions returns the functions the module exports, sorted by name.
func (m *Module) Definitions() []functions.Definition {
	return append([]functions.Definition(nil), m.defs...)
}

// Call invokes the exported function export.
func (m *Module) Call(ctx context.Context, export string, args ...float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.Errorf("wasm module closed: cannot call %s", export)
	}
	fn := m.module.ExportedFunction(export)
	if fn == nil {
		return 0, errors.Errorf("wasm module does not export %s", export)
	}
	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = api.EncodeF64(a)
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, errors.Wrapf(err, "wasm call %s", export)
	}
	if len(res) != 1 {
		return 0, errors.Errorf("wasm call %s returned %d results", export, len(res))
	}
	return api.DecodeF64(res[0]), nil
}

// Close releases the runtime. Further calls fail.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.runtime.Close(ctx)
}
