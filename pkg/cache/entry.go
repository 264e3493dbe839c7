package cache

import (
	"context"
	"time"
)

// Store is the key/value backend consumed by the Manager.
// Implementations must be safe for concurrent use; Get and Put are each
// expected to be atomic, nothing more.
type Store interface {
	// Get returns (value, true, nil) on hit and ("", false, nil) on miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key. A zero expiresAt means no expiry bound.
	Put(ctx context.Context, key, value string, expiresAt time.Time) error
}

// Inspector is implemented by stores that can report what they hold for a key.
type Inspector interface {
	// Inspect returns the live entry for key; expired entries are misses.
	Inspect(ctx context.Context, key string) (Entry, bool, error)
}

// Entry represents a rendered fragment held by a Store.
type Entry struct {
	// Key is the fragment fingerprint
	Key string `json:"key"`

	// Value is the rendered output
	Value string `json:"value"`

	// ExpiresAt is when the entry becomes stale (zero: never)
	ExpiresAt time.Time `json:"expires_at"`

	// CachedAt is when the entry was written
	CachedAt time.Time `json:"cached_at"`
}

// HasExpiry reports whether the entry carries an expiry bound.
func (e *Entry) HasExpiry() bool {
	return !e.ExpiresAt.IsZero()
}

// IsExpired returns true if the entry has an expiry bound that has passed.
func (e *Entry) IsExpired(now time.Time) bool {
	return e.HasExpiry() && !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 for entries without expiry or already expired ones.
func (e *Entry) TTL(now time.Time) time.Duration {
	if !e.HasExpiry() {
		return 0
	}
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
