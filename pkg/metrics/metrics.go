// Package metrics exposes the Prometheus metrics of the pipeline.
// All metrics are defined in their respective packages (cache, batch,
// engine, api, ratelimit, telemetry) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every pipeline metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the registered metrics.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - fleetstat_cache_hits_total (Counter): Valid snapshots returned
//   - fleetstat_cache_misses_total{reason} (Counter): Misses by reason (absent, expired, corrupt)
//   - fleetstat_cache_errors_total{operation} (Counter): Redis failures by operation
//   - fleetstat_cache_written_bytes_total (Counter): Bytes of snapshots written
//
// Batch Metrics (pkg/batch):
//   - fleetstat_batch_duration_seconds{operation} (Histogram): Time for one batch to settle
//   - fleetstat_batch_items_total{operation, outcome} (Counter): Items by outcome (ok, failed)
//
// Run Metrics (pkg/engine):
//   - fleetstat_runs_total{operation, outcome} (Counter): Runs by outcome (complete, failed, dropped, superseded)
//   - fleetstat_run_duration_seconds{operation} (Histogram): Run wall time
//   - fleetstat_child_fetch_failures_total{category} (Counter): Failed device listings
//   - fleetstat_active_runs (Gauge): Runs in progress
//
// Request Metrics (pkg/api):
//   - fleetstat_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - fleetstat_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - fleetstat_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fleetstat_rate_limit_wait_seconds (Histogram): Time spent waiting for a token
//   - fleetstat_rate_limit_blocks_total (Counter): Requests blocked by an upstream cooldown
//   - fleetstat_upstream_throttles_total (Counter): 429 responses received
//
// Telemetry Metrics (pkg/telemetry):
//   - fleetstat_telemetry_polls_total{outcome} (Counter): Polls by outcome
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(fleetstat_cache_hits_total[5m])) /
//   (sum(rate(fleetstat_cache_hits_total[5m])) + sum(rate(fleetstat_cache_misses_total[5m])))
//
//   # Device listing failure rate by category
//   sum by (category) (rate(fleetstat_child_fetch_failures_total[15m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fleetstat_api_request_duration_seconds_bucket[5m]))
//
//   # Failed runs
//   increase(fleetstat_runs_total{outcome="failed"}[1h])
