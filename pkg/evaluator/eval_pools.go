package evaluator

import (
	"sync"
)

// statePool recycles evalState values across EvalNode calls. A scan
// evaluates one formula for every symbol and day, so the state is the
// only per-point allocation on the hot path.
//
// Each caller owns the state it acquired until it releases it; states
// are never shared between goroutines.
var statePool = sync.Pool{
	New: func() interface{} { return new(evalState) },
}

// acquireState returns a reset state positioned at env.
func acquireState(env Env) *evalState {
	s := statePool.Get().(*evalState)
	s.Env = env
	s.depth = 0
	return s
}

// releaseState returns s to the pool. The environment is cleared so the
// pool does not retain variable stores or quote sources.
func releaseState(s *evalState) {
	if s == nil {
		return
	}
	s.Env = Env{}
	s.depth = 0
	statePool.Put(s)
}

// maxPooledSeries bounds the windows kept in seriesPool; longer ones are
// left to the garbage collector.
const maxPooledSeries = 4096

// seriesPool recycles the buffers window functions read quotes into.
var seriesPool = sync.Pool{
	New: func() interface{} {
		b := make([]float64, 0, 64)
		return &b
	},
}

// acquireSeries returns a buffer of length n.
func acquireSeries(n int) []float64 {
	p := seriesPool.Get().(*[]float64)
	if cap(*p) < n {
		seriesPool.Put(p)
		return make([]float64, n)
	}
	return (*p)[:n]
}

// releaseSeries returns values to the pool. values must not be used after.
func releaseSeries(values []float64) {
	if values == nil || cap(values) > maxPooledSeries {
		return
	}
	values = values[:0]
	seriesPool.Put(&values)
}
