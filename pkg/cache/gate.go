package cache

import (
	"net/http"
	"strings"
	"time"
)

// RenderContext carries the request-scoped inputs of a single RenderCached call.
type RenderContext struct {
	// Method is the HTTP method of the in-flight request
	Method string

	// Preview marks an internal preview or simulated render; caching is never used
	Preview bool

	// URL resolves the absolute request URL; only called for page-scoped fragments
	URL URLResolver

	// Now is the evaluation instant for TTL resolution (zero: manager clock)
	Now time.Time
}

// IsCachingPermitted reports whether a request with the given method may
// read from or write to the fragment cache. Only GET qualifies.
func IsCachingPermitted(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), http.MethodGet)
}

// CachingPermitted applies IsCachingPermitted and rejects preview renders.
func (rc RenderContext) CachingPermitted() bool {
	return !rc.Preview && IsCachingPermitted(rc.Method)
}
