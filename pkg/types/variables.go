package types

import (
	"fmt"
	"sort"
)

// Variable is a named, typed slot an expression can read and write.
type Variable struct {
	Name  string
	Type  Type
	Value float64
	// Constant is a language level convention: the store itself does not
	// refuse writes.
	Constant bool
	// Function marks slots holding function parameters. It is exclusive
	// with Constant.
	Function bool
}

// Variables is a flat name to variable store.
//
// Variables is NOT safe for concurrent use. Evaluations running in
// parallel must each use their own store (see Clone).
type Variables struct {
	vars map[string]*Variable
}

// NewVariables returns an empty store.
func NewVariables() *Variables {
	return &Variables{vars: make(map[string]*Variable)}
}

func validVariableType(t Type) bool {
	return t == Boolean || t == Float || t == Integer
}

func (v *Variables) add(variable *Variable) error {
	if !validVariableType(variable.Type) {
		return fmt.Errorf("variable %q: type %s cannot be stored", variable.Name, variable.Type)
	}
	if _, ok := v.vars[variable.Name]; ok {
		return fmt.Errorf("variable %q already declared", variable.Name)
	}
	if v.vars == nil {
		v.vars = make(map[string]*Variable)
	}
	v.vars[variable.Name] = variable
	return nil
}

// Add declares a mutable variable.
func (v *Variables) Add(name string, t Type, value float64) error {
	return v.add(&Variable{Name: name, Type: t, Value: value})
}

// AddConstant declares a constant.
func (v *Variables) AddConstant(name string, t Type, value float64) error {
	return v.add(&Variable{Name: name, Type: t, Value: value, Constant: true})
}

// AddFunction declares a function parameter slot.
func (v *Variables) AddFunction(name string, t Type, value float64) error {
	return v.add(&Variable{Name: name, Type: t, Value: value, Function: true})
}

// Get returns the variable called name or a variable-not-found error.
func (v *Variables) Get(name string) (*Variable, error) {
	if v != nil {
		if variable, ok := v.vars[name]; ok {
			return variable, nil
		}
	}
	return nil, Errorf(ErrVariableNotFound, "variable %q not found", name)
}

// Value returns the current value of name.
func (v *Variables) Value(name string) (float64, error) {
	variable, err := v.Get(name)
	if err != nil {
		return 0, err
	}
	return variable.Value, nil
}

// SetValue overwrites the value of name, constant or not.
func (v *Variables) SetValue(name string, value float64) error {
	variable, err := v.Get(name)
	if err != nil {
		return err
	}
	variable.Value = value
	return nil
}

// Contains reports whether name is declared.
func (v *Variables) Contains(name string) bool {
	if v == nil {
		return false
	}
	_, ok := v.vars[name]
	return ok
}

// Remove deletes name from the store.
func (v *Variables) Remove(name string) {
	delete(v.vars, name)
}

// Len returns the number of declared variables.
func (v *Variables) Len() int {
	if v == nil {
		return 0
	}
	return len(v.vars)
}

// Names returns the declared names in sorted order.
func (v *Variables) Names() []string {
	if v == nil {
		return nil
	}
	names := make([]string, 0, len(v.vars))
	for name := range v.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the store.
func (v *Variables) Clone() *Variables {
	out := NewVariables()
	if v == nil {
		return out
	}
	for name, variable := range v.vars {
		c := *variable
		out.vars[name] = &c
	}
	return out
}
