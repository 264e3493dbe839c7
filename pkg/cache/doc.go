// Package cache provides template fragment memoization over a pluggable
// key/value store.
//
// The manager implements a read-through/write-through contract for fragment
// cache directives:
//
// - Deterministic fingerprints from fragment content and parameters
// - Optional per-URL scoping (scope=page)
// - Relative TTL expressions ("10 minutes", "1 day", "90s")
// - Render gate: only GET requests outside preview mode touch the store
// - Fail-open error handling: cache trouble never fails a render
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create a store (see package store for Redis, Ristretto and BigCache)
//	st := store.NewRedis(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	// Create cache manager
//	manager, err := cache.NewManager(cache.DefaultConfig(st))
//
//	// Describe the fragment from the directive parameters
//	d, err := cache.ParseDirective(source, map[string]any{
//		"scope": "page",
//		"for":   "10 minutes",
//		"region": "eu",
//	})
//
//	// Render through the cache
//	out, err := manager.RenderCached(ctx, d, cache.RenderContext{
//		Method: r.Method,
//		URL:    func() (string, error) { return absoluteURL(r), nil },
//	}, func(ctx context.Context) (string, error) {
//		return renderFragment(ctx, source)
//	})
//
// # Fingerprints
//
// A fingerprint is "<namespace>:<sha256>", hashed over the canonical CBOR
// encoding of {content, params} plus the normalized URL for page scope.
// Parameter insertion order never matters; parameter value types do.
//
// # Metrics
//
// The manager exports Prometheus metrics:
//
//   - fragcache_hits_total - Cache hits
//   - fragcache_misses_total - Cache misses
//   - fragcache_bypass_total{reason} - Renders that skipped the cache (gate, key)
//   - fragcache_errors_total{operation} - Swallowed errors (key, get, put, ttl)
//   - fragcache_renders_total - Fresh renders
//   - fragcache_render_duration_seconds - Fresh render latency
//   - fragcache_coalesced_total - Misses served by a shared in-flight render
//   - fragcache_stored_bytes_total - Bytes written to the store
package cache
