package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// Redis stores fragments in Redis; expiry is delegated to Redis key TTLs.
type Redis struct {
	client redis.UniversalClient
	clock  func() time.Time
}

// NewRedis creates a Redis-backed store.
func NewRedis(client redis.UniversalClient) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{
		client: client,
		clock:  time.Now,
	}
}

// SetClock overrides the clock used to turn expiry instants into TTLs (for testing).
func (r *Redis) SetClock(clock func() time.Time) {
	r.clock = clock
}

// Get retrieves a rendered fragment by key.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	env, ok, err := r.lookup(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return env.Value, true, nil
}

// Inspect returns the stored entry for key.
func (r *Redis) Inspect(ctx context.Context, key string) (cache.Entry, bool, error) {
	env, ok, err := r.lookup(ctx, key)
	if err != nil || !ok {
		return cache.Entry{}, false, err
	}
	return env.entry(key), true, nil
}

func (r *Redis) lookup(ctx context.Context, key string) (envelope, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return envelope{}, false, nil
		}
		return envelope{}, false, fmt.Errorf("redis get: %w", err)
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		return envelope{}, false, err
	}

	// Redis evicts on its own; a reader whose clock runs ahead only misses
	// and leaves the key for the other readers
	if env.expired(r.clock()) {
		return envelope{}, false, nil
	}

	return env, true, nil
}

// Put stores a rendered fragment. A zero expiresAt keeps the key until evicted.
// Entries that are already expired are not written.
func (r *Redis) Put(ctx context.Context, key, value string, expiresAt time.Time) error {
	now := r.clock()
	ttl, ok := ttlFor(expiresAt, now)
	if !ok {
		return nil
	}

	data, err := encodeEnvelope(newEnvelope(value, expiresAt, now))
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a fragment.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
