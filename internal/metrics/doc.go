// Package metrics provides the request-event log of the scraper. Producers
// call Recorder.Increment from any goroutine; a single background goroutine
// batches the events and appends them to pluggable sinks (a CSV file,
// Prometheus counters, structured logs). Closing the Recorder drains and
// flushes everything queued before it returns.
package metrics
