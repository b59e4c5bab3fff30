// Package metrics provides lock-free counters and latency histograms for convauth
// observability.
//
// # Design
//
// Counters are plain atomic uint64 slots indexed by [MetricID]. The refresh
// latency histogram uses 8 fixed buckets (≤5ms … +Inf). Both are
// allocation-free on the write path.
//
// # Architecture boundaries
//
// This package owns metric storage and snapshot creation. Metric export
// (Prometheus, OTel) lives in metrics/export/ and reads Snapshot values.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import convauth or any sibling package.
//   - Expose global metric registries.
package metrics
