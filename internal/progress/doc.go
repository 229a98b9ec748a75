// Package progress provides the task lifecycle events, the non-blocking hub
// and the emitter interface the task engine uses to report them. The hub
// batches events on a background goroutine and fans them out to pluggable
// sinks such as logs, Prometheus counters or a Pub/Sub topic.
package progress
