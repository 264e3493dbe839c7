// Package metrics provides the Prometheus registry and HTTP exposition for
// the fragment cache. Metrics are defined next to the code that records them
// (pkg/cache) and registered via promauto.
//
// This package documents every metric and serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer collects the metrics served by Handler.
// All metrics are automatically registered via promauto in their respective packages,
// so this is the default gatherer.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Fragment Cache Metrics (pkg/cache):
//   - fragcache_hits_total (Counter): Fragment cache hits
//   - fragcache_misses_total (Counter): Fragment cache misses
//   - fragcache_bypass_total{reason} (Counter): Renders that skipped the cache (gate, key)
//   - fragcache_errors_total{operation} (Counter): Swallowed errors (key, get, put, ttl)
//   - fragcache_renders_total (Counter): Fresh fragment renders
//   - fragcache_render_duration_seconds (Histogram): Fresh render latency
//   - fragcache_coalesced_total (Counter): Misses served by a shared in-flight render
//   - fragcache_stored_bytes_total (Counter): Bytes written to the store
//
// Store Metrics (pkg/store):
//   - fragcache_store_ready_retries_total (Counter): Failed readiness probes that were retried
//   - fragcache_store_ready_backoff_seconds (Histogram): Backoff between readiness probes
//
// Example Prometheus Queries:
//
//   # Hit Rate
//   sum(rate(fragcache_hits_total[5m])) /
//   (sum(rate(fragcache_hits_total[5m])) + sum(rate(fragcache_misses_total[5m])))
//
//   # Store Write Failures
//   rate(fragcache_errors_total{operation="put"}[5m])
//
//   # Renders Avoided By The Gate Being Closed
//   rate(fragcache_bypass_total{reason="gate"}[5m])
//
//   # P95 Render Latency
//   histogram_quantile(0.95, rate(fragcache_render_duration_seconds_bucket[5m]))
