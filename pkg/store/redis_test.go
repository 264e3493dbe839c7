package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupMiniredis creates an in-memory Redis server and a store bound to it.
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := NewRedis(client)
	st.SetClock(func() time.Time { return t0 })
	return mr, st
}

func TestNewRedis_Panic(t *testing.T) {
	assert.Panics(t, func() { NewRedis(nil) })
}

func TestRedis_PutAndGet(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "fragcache:abc", "<p>Hi</p>", time.Time{}))

	got, ok, err := st.Get(ctx, "fragcache:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<p>Hi</p>", got)
	assert.Equal(t, time.Duration(0), mr.TTL("fragcache:abc"), "no expiry should leave the key persistent")
}

func TestRedis_Get_Miss(t *testing.T) {
	_, st := setupMiniredis(t)

	got, ok, err := st.Get(context.Background(), "fragcache:missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestRedis_Put_TTL(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "fragcache:ttl", "x", t0.Add(5*time.Minute)))
	assert.Equal(t, 5*time.Minute, mr.TTL("fragcache:ttl"))

	mr.FastForward(6 * time.Minute)

	_, ok, err := st.Get(ctx, "fragcache:ttl")
	require.NoError(t, err)
	assert.False(t, ok, "entry should have expired in redis")
}

func TestRedis_Put_AlreadyExpired(t *testing.T) {
	mr, st := setupMiniredis(t)

	require.NoError(t, st.Put(context.Background(), "fragcache:old", "x", t0.Add(-time.Second)))
	assert.False(t, mr.Exists("fragcache:old"), "expired entries must not be written")
}

func TestRedis_Get_ExpiredEnvelope(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "fragcache:skew", "x", t0.Add(time.Minute)))

	// Reader clock ahead of redis
	st.SetClock(func() time.Time { return t0.Add(2 * time.Minute) })

	_, ok, err := st.Get(ctx, "fragcache:skew")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("fragcache:skew"), "entry still live in redis must be kept")

	// A reader on redis time still sees it
	st.SetClock(func() time.Time { return t0 })
	got, ok, err := st.Get(ctx, "fragcache:skew")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", got)
}

func TestRedis_Get_Corrupt(t *testing.T) {
	mr, st := setupMiniredis(t)
	require.NoError(t, mr.Set("fragcache:bad", "not an envelope"))

	_, ok, err := st.Get(context.Background(), "fragcache:bad")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestRedis_Delete(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "fragcache:del", "x", time.Time{}))
	require.NoError(t, st.Delete(ctx, "fragcache:del"))
	assert.False(t, mr.Exists("fragcache:del"))
}

func TestRedis_ServerDown(t *testing.T) {
	mr, st := setupMiniredis(t)
	mr.Close()

	_, _, err := st.Get(context.Background(), "fragcache:x")
	assert.Error(t, err)
	assert.Error(t, st.Put(context.Background(), "fragcache:x", "x", time.Time{}))
}

func TestRedis_Inspect(t *testing.T) {
	_, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "fragcache:meta", "<p>meta</p>", t0.Add(time.Hour)))

	e, ok, err := st.Inspect(ctx, "fragcache:meta")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fragcache:meta", e.Key)
	assert.Equal(t, "<p>meta</p>", e.Value)
	assert.True(t, e.CachedAt.Equal(t0))
	assert.True(t, e.ExpiresAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, time.Hour, e.TTL(t0))

	_, ok, err = st.Inspect(ctx, "fragcache:none")
	require.NoError(t, err)
	assert.False(t, ok)
}
