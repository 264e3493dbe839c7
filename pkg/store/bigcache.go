package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/allegro/bigcache/v3"
)

// BigCacheConfig configures the in-process BigCache store.
type BigCacheConfig struct {
	// LifeWindow is the hard upper bound on any entry's lifetime
	LifeWindow time.Duration

	// CleanWindow is how often expired entries are purged (0: never)
	CleanWindow time.Duration

	// MaxEntrySize is the expected rendered fragment size in bytes
	MaxEntrySize int

	// HardMaxCacheSizeMB caps memory usage (0: unlimited)
	HardMaxCacheSizeMB int

	// Clock is used for per-entry expiry checks (default: time.Now)
	Clock func() time.Time
}

// DefaultBigCacheConfig returns a configuration with a 24h life window.
func DefaultBigCacheConfig() BigCacheConfig {
	return BigCacheConfig{
		LifeWindow:   24 * time.Hour,
		CleanWindow:  5 * time.Minute,
		MaxEntrySize: 4096,
		Clock:        time.Now,
	}
}

// BigCache stores fragments in BigCache. Entries without expiry still leave
// after LifeWindow, which counts as external eviction.
type BigCache struct {
	c     *bigcache.BigCache
	clock func() time.Time
}

// NewBigCache creates a BigCache-backed store.
func NewBigCache(cfg BigCacheConfig) (*BigCache, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: life window must be positive")
	}

	conf := bigcache.DefaultConfig(cfg.LifeWindow)
	conf.CleanWindow = cfg.CleanWindow
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}

	c, err := bigcache.NewBigCache(conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &BigCache{c: c, clock: clock}, nil
}

// Get retrieves a rendered fragment by key.
func (b *BigCache) Get(_ context.Context, key string) (string, bool, error) {
	env, ok, err := b.lookup(key)
	if err != nil || !ok {
		return "", false, err
	}
	return env.Value, true, nil
}

// Inspect returns the stored entry for key.
func (b *BigCache) Inspect(_ context.Context, key string) (cache.Entry, bool, error) {
	env, ok, err := b.lookup(key)
	if err != nil || !ok {
		return cache.Entry{}, false, err
	}
	return env.entry(key), true, nil
}

func (b *BigCache) lookup(key string) (envelope, bool, error) {
	data, err := b.c.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return envelope{}, false, nil
		}
		return envelope{}, false, fmt.Errorf("bigcache get: %w", err)
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		_ = b.c.Delete(key)
		return envelope{}, false, err
	}
	if env.expired(b.clock()) {
		_ = b.c.Delete(key)
		return envelope{}, false, nil
	}
	return env, true, nil
}

// Put stores a rendered fragment.
func (b *BigCache) Put(_ context.Context, key, value string, expiresAt time.Time) error {
	now := b.clock()
	if _, ok := ttlFor(expiresAt, now); !ok {
		return nil
	}

	data, err := encodeEnvelope(newEnvelope(value, expiresAt, now))
	if err != nil {
		return err
	}
	if err := b.c.Set(key, data); err != nil {
		return fmt.Errorf("bigcache set: %w", err)
	}
	return nil
}

// Delete removes a fragment.
func (b *BigCache) Delete(_ context.Context, key string) error {
	if err := b.c.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("bigcache del: %w", err)
	}
	return nil
}

// Close releases the cache.
func (b *BigCache) Close() error {
	return b.c.Close()
}
