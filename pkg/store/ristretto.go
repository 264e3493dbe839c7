package store

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/dgraph-io/ristretto"
)

// RistrettoConfig configures the in-process Ristretto store.
type RistrettoConfig struct {
	// NumCounters is the number of keys tracked for admission (~10x expected entries)
	NumCounters int64

	// MaxCost is the total byte budget of rendered output
	MaxCost int64

	// BufferItems is the Get buffer size (64 is the recommended value)
	BufferItems int64

	// Clock is used for expiry checks (default: time.Now)
	Clock func() time.Time
}

// DefaultRistrettoConfig returns a configuration sized for ~100k fragments / 256 MiB.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 1_000_000,
		MaxCost:     256 << 20,
		BufferItems: 64,
		Clock:       time.Now,
	}
}

// Ristretto stores fragments in a cost-bounded in-process cache.
type Ristretto struct {
	c     *ristretto.Cache
	clock func() time.Time
}

// NewRistretto creates a Ristretto-backed store.
func NewRistretto(cfg RistrettoConfig) (*Ristretto, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ristretto{c: c, clock: clock}, nil
}

// Get retrieves a rendered fragment by key.
func (r *Ristretto) Get(_ context.Context, key string) (string, bool, error) {
	env, ok := r.lookup(key)
	if !ok {
		return "", false, nil
	}
	return env.Value, true, nil
}

// Inspect returns the stored entry for key.
func (r *Ristretto) Inspect(_ context.Context, key string) (cache.Entry, bool, error) {
	env, ok := r.lookup(key)
	if !ok {
		return cache.Entry{}, false, nil
	}
	return env.entry(key), true, nil
}

func (r *Ristretto) lookup(key string) (envelope, bool) {
	v, ok := r.c.Get(key)
	if !ok {
		return envelope{}, false
	}
	env, ok := v.(envelope)
	if !ok || env.expired(r.clock()) {
		r.c.Del(key)
		return envelope{}, false
	}
	return env, true
}

// Put stores a rendered fragment with its byte length as cost.
// Writes are applied before Put returns so the next Get observes them.
func (r *Ristretto) Put(_ context.Context, key, value string, expiresAt time.Time) error {
	now := r.clock()
	ttl, ok := ttlFor(expiresAt, now)
	if !ok {
		return nil
	}

	if !r.c.SetWithTTL(key, newEnvelope(value, expiresAt, now), int64(len(value))+1, ttl) {
		return ErrRejected
	}
	r.c.Wait()
	return nil
}

// Delete removes a fragment.
func (r *Ristretto) Delete(_ context.Context, key string) error {
	r.c.Del(key)
	return nil
}

// Close releases the cache.
func (r *Ristretto) Close() error {
	r.c.Close()
	return nil
}
