// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that scans use to report progress. It batches events on a
// background goroutine and fans them out to pluggable sinks such as Prometheus
// metrics or the scan store.
package progress
