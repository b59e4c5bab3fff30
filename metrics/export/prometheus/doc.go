// Package prometheus renders convauth metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [convauth.Engine] and exposes an
// [http.Handler] that serves all counters and histograms. Counter names are
// prefixed convauth_*_total; the single histogram is
// convauth_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
