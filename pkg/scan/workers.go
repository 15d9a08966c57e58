//go:build !((js && wasm) || wasip1)

package scan

import "runtime"

// defaultWorkers is the worker count of a Scanner created without
// WithWorkers.
var defaultWorkers = runtime.GOMAXPROCS(0)
