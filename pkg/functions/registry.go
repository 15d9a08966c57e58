// Package functions provides types for registering custom Gondola functions.
//
// Custom functions extend the builtin set (avg, ema, rsi, ...). A function
// declares its operand and result types so that the parser can resolve
// calls and the checker can validate them before anything runs.
//
// # Example
//
//	half := functions.Definition{
//	    Name:   "half",
//	    Params: []types.Type{types.Numeric},
//	    Result: types.Float,
//	    Fn: func(_ context.Context, args ...float64) (float64, error) {
//	        return args[0] / 2, nil
//	    },
//	}
//	expr, err := gondola.Compile("half(close)", gondola.WithFunctions(half))
package functions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sandrolain/gondola/pkg/types"
)

// Func is the signature of a custom function implementation.
// args holds the evaluated operands in order.
type Func func(ctx context.Context, args ...float64) (float64, error)

// Definition describes a custom function together with its signature.
type Definition struct {
	// Name is the function name as it appears inside expressions.
	Name string
	// Params lists the accepted operand types. types.Numeric accepts any
	// number, types.Integer any integral number.
	Params []types.Type
	// Result is the type the call resolves to.
	Result types.Type
	// Fn is the implementation.
	Fn Func
}

// Signature returns the checker view of the definition.
func (d Definition) Signature() *types.Signature {
	return &types.Signature{
		Params: append([]types.Type(nil), d.Params...),
		Result: d.Result,
	}
}

// Validate reports malformed definitions.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("function definition without a name")
	}
	if _, ok := types.LookupFunc(d.Name); ok {
		return fmt.Errorf("function %q shadows a builtin", d.Name)
	}
	if d.Fn == nil {
		return fmt.Errorf("function %q has no implementation", d.Name)
	}
	switch d.Result {
	case types.Boolean, types.Float, types.Integer:
	default:
		return fmt.Errorf("function %q: result type %s is not allowed", d.Name, d.Result)
	}
	return nil
}

// Registry is a set of custom functions indexed by name.
//
// Safe for concurrent use by multiple goroutines.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d, replacing a previous definition with the same name.
func (r *Registry) Register(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = make(map[string]Definition)
	}
	r.defs[d.Name] = d
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	r.mu.RLock()
	d, ok := r.defs[name]
	r.mu.RUnlock()
	return d, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
