// Package prometheus provides a Prometheus collector for goRoam metrics.
//
// [NewCollector] accepts a [goRoam.Engine] and yields a prometheus.Collector
// that reads [goRoam.Engine.MetricsSnapshot] on each scrape. Counter names are
// goroam_*_total. The single histogram is
// goroam_validate_session_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register
//     the collector or mount [Collector.Handler].
//   - Mutate engine state.
package prometheus
