package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fragment cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragcache_hits_total",
			Help: "Total number of fragment cache hits",
		},
	)

	// CacheMisses tracks fragment cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragcache_misses_total",
			Help: "Total number of fragment cache misses",
		},
	)

	// CacheBypasses tracks renders that skipped the cache entirely
	CacheBypasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragcache_bypass_total",
			Help: "Total number of fragment renders that bypassed the cache",
		},
		[]string{"reason"}, // "gate", "key"
	)

	// CacheErrors tracks swallowed cache subsystem errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fragcache_errors_total",
			Help: "Total number of fragment cache errors",
		},
		[]string{"operation"}, // "key", "get", "put", "ttl"
	)

	// Renders tracks fresh fragment renders
	Renders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragcache_renders_total",
			Help: "Total number of fresh fragment renders",
		},
	)

	// RenderDuration tracks how long fresh renders take
	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fragcache_render_duration_seconds",
			Help:    "Duration of fresh fragment renders in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// CoalescedMisses tracks misses that shared another caller's render
	CoalescedMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragcache_coalesced_total",
			Help: "Total number of cache misses served by an in-flight render",
		},
	)

	// StoredBytes tracks bytes written to the store
	StoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fragcache_stored_bytes_total",
			Help: "Total bytes of rendered output written to the store",
		},
	)
)
