//go:build (js && wasm) || wasip1

package scan

// On js/wasm the JavaScript runtime is single-threaded: goroutines are
// multiplexed cooperatively on the same OS thread, so a pool of workers
// only adds scheduling overhead. wasip1 has no threads either. Scans run
// on a single worker on both targets.
var defaultWorkers = 1
