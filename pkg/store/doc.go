// Package store provides key/value backends for the fragment cache.
//
// Every backend satisfies cache.Store:
//
//   - Redis: shared across processes, expiry enforced by Redis TTLs
//   - Ristretto: in-process, cost-bounded (cost = rendered bytes)
//   - BigCache: in-process, GC-friendly; per-entry expiry is checked on read
//     because BigCache only knows a global life window
//
// Values are wrapped in a small msgpack envelope carrying the expiry instant,
// so every backend can reject stale entries even when its own eviction runs late.
package store
