// Package prometheus provides Prometheus collectors for learnauth metrics.
//
// [NewPrometheusExporter] accepts an [learnauth.Engine] and exposes an [http.Handler]
// that renders all learnauth counters and histograms in Prometheus text exposition format.
// Counter names are prefixed learnauth_*_total; the single histogram is
// learnauth_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
