package evaluator

import (
	"fmt"

	"github.com/sandrolain/gondola/pkg/types"
)

// evalState carries the evaluation point and the bookkeeping of one
// EvalNode call. It is never shared between goroutines.
type evalState struct {
	Env

	// depth tracks recursion depth to bound pathological trees
	depth int
}

// failf builds an evaluation failure raised by node at the current point.
func (s *evalState) failf(node *types.Node, code types.ErrorCode, format string, args ...interface{}) *types.Error {
	return types.Errorf(code, format, args...).WithNode(node).AtDay(s.Symbol, s.Day)
}

// decorate attaches the node and evaluation point to errors coming from
// collaborators (variable store, quote source, custom functions). The
// error is copied first: collaborators may return shared values.
func (s *evalState) decorate(node *types.Node, err error) error {
	if ge, ok := types.AsError(err); ok {
		e := *ge
		if e.Node == nil {
			e.Node = node
		}
		return e.AtDay(s.Symbol, s.Day)
	}
	return err
}

// String returns a string representation of the state.
func (s *evalState) String() string {
	return fmt.Sprintf("State{symbol=%s, day=%d, depth=%d}", s.Symbol, s.Day, s.depth)
}
