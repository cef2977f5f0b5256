// Package sinks implements concrete metrics consumers: an append-only CSV file,
// Prometheus counters, and structured logging. Each sink satisfies the
// metrics.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
