package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RenderFunc produces the fresh output of a fragment.
type RenderFunc func(ctx context.Context) (string, error)

// Config holds the manager configuration.
type Config struct {
	// Store is the key/value backend (REQUIRED)
	Store Store

	// Namespace prefixes every fingerprint (default: "fragcache")
	Namespace string

	// Logger receives cache diagnostics (default: component logger "fragcache")
	Logger *zerolog.Logger

	// Clock supplies "now" when a RenderContext carries none (default: time.Now)
	Clock func() time.Time

	// StrictTTL skips the store write when a TTL expression is invalid,
	// instead of caching without expiry
	StrictTTL bool

	// CoalesceMisses lets concurrent misses on one fingerprint share a single render
	CoalesceMisses bool

	// OnError receives every cache subsystem error that was swallowed
	OnError func(error)
}

// DefaultConfig returns the default configuration for the given store.
func DefaultConfig(store Store) Config {
	return Config{
		Store:     store,
		Namespace: DefaultNamespace,
		Clock:     time.Now,
	}
}

// Manager implements read-through/write-through caching of template fragments.
// It is safe for concurrent use.
type Manager struct {
	store     Store
	keys      *KeyBuilder
	logger    zerolog.Logger
	clock     func() time.Time
	strictTTL bool
	group     *singleflight.Group
	onError   func(error)
}

// NewManager creates a new fragment cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	keys, err := NewKeyBuilder(cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("key builder: %w", err)
	}

	logger := log.With().Str("component", "fragcache").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	m := &Manager{
		store:     cfg.Store,
		keys:      keys,
		logger:    logger,
		clock:     clock,
		strictTTL: cfg.StrictTTL,
		onError:   cfg.OnError,
	}
	if cfg.CoalesceMisses {
		m.group = &singleflight.Group{}
	}

	return m, nil
}

// Key returns the fingerprint a descriptor would be cached under.
func (m *Manager) Key(d Descriptor, rc RenderContext) (string, error) {
	return m.keys.Build(d, rc.URL)
}

// RenderCached returns the cached output for a fragment, rendering and
// storing it on a miss.
//
// Cache failures never fail the call: a closed gate, an unbuildable key or a
// store read error all fall back to a fresh render, and a store write error
// still returns the rendered value. Errors from render are returned unchanged
// and nothing is written in that case.
//
// With CoalesceMisses, callers that miss on the same key while a render is in
// flight wait for it and share its result. The shared render keeps the first
// caller's values but not its cancellation, so one aborted request cannot
// fail the others.
func (m *Manager) RenderCached(ctx context.Context, d Descriptor, rc RenderContext, render RenderFunc) (string, error) {
	if render == nil {
		return "", errors.New("render func is required")
	}

	if !rc.CachingPermitted() {
		CacheBypasses.WithLabelValues("gate").Inc()
		m.logger.Debug().
			Str("method", rc.Method).
			Bool("preview", rc.Preview).
			Msg("Fragment cache bypassed by render gate")
		return m.render(ctx, render)
	}

	key, err := m.keys.Build(d, rc.URL)
	if err != nil {
		CacheBypasses.WithLabelValues("key").Inc()
		m.report("key", "", err)
		return m.render(ctx, render)
	}

	value, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.report("get", key, &StoreError{Op: "get", Key: key, Err: err})
		ok = false
	}
	if ok {
		CacheHits.Inc()
		m.logger.Debug().
			Str("key", key).
			Str("size", humanize.Bytes(uint64(len(value)))).
			Msg("Fragment cache hit")
		return value, nil
	}

	CacheMisses.Inc()
	m.logger.Debug().Str("key", key).Msg("Fragment cache miss")

	now := rc.Now
	if now.IsZero() {
		now = m.clock()
	}

	if m.group == nil {
		return m.fill(ctx, key, d, now, render)
	}

	shared := context.WithoutCancel(ctx)
	v, err, coalesced := m.group.Do(key, func() (any, error) {
		return m.fill(shared, key, d, now, render)
	})
	if coalesced {
		CoalescedMisses.Inc()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fill renders a missed fragment and writes it through to the store.
func (m *Manager) fill(ctx context.Context, key string, d Descriptor, now time.Time, render RenderFunc) (string, error) {
	value, err := m.render(ctx, render)
	if err != nil {
		return "", err
	}

	expiresAt, err := ResolveTTL(d.TTLExpression, now)
	if err != nil {
		m.report("ttl", key, err)
		if m.strictTTL {
			return value, nil
		}
		expiresAt = time.Time{}
	}

	if err := m.store.Put(ctx, key, value, expiresAt); err != nil {
		m.report("put", key, &StoreError{Op: "put", Key: key, Err: err})
		return value, nil
	}

	StoredBytes.Add(float64(len(value)))

	event := m.logger.Debug().
		Str("key", key).
		Str("size", humanize.Bytes(uint64(len(value))))
	if !expiresAt.IsZero() {
		event = event.Dur("ttl", expiresAt.Sub(now))
	}
	event.Msg("Cached fragment")

	return value, nil
}

func (m *Manager) render(ctx context.Context, render RenderFunc) (string, error) {
	start := time.Now()
	value, err := render(ctx)
	RenderDuration.Observe(time.Since(start).Seconds())
	Renders.Inc()
	return value, err
}

// report logs and counts a swallowed cache error.
func (m *Manager) report(op, key string, err error) {
	CacheErrors.WithLabelValues(op).Inc()

	event := m.logger.Warn().Err(err).Str("operation", op)
	if key != "" {
		event = event.Str("key", key)
	}
	event.Msg("Fragment cache error, continuing without cache")

	if m.onError != nil {
		m.onError(err)
	}
}
