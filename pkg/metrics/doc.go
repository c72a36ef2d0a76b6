/*
Package metrics provides Prometheus metrics and health endpoints for the
monitor.

All metrics are package-level collectors registered at init time: lifecycle
state and transition counts, disk sampling throughput, progress and ETC
gauges, dispatch queue depth, per-provider delivery outcomes and latency,
rate-limit waits, circuit breaker states, and classified error counts.
Components record into them directly.

The optional Server exposes /metrics together with /health, /ready, and
/live. Readiness tracks the critical components (store, watcher, dispatcher)
registered through RegisterComponent; liveness only proves the process is
up.

# Usage

	metrics.SamplesTotal.Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DeliveryDuration, "telegram")

	srv := metrics.NewServer(":9712")
	srv.Start()
	defer srv.Stop(ctx)
*/
package metrics
