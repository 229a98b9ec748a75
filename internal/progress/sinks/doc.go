// Package sinks implements concrete task event consumers: structured logging,
// Prometheus counters and a topic publisher for terminal transitions. Each
// sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
