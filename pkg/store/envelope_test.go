package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Expiry(t *testing.T) {
	forever := newEnvelope("x", time.Time{}, t0)
	assert.Zero(t, forever.ExpiresAt)
	assert.False(t, forever.expired(t0.Add(100*365*24*time.Hour)))

	bounded := newEnvelope("x", t0.Add(time.Minute), t0)
	assert.False(t, bounded.expired(t0))
	assert.True(t, bounded.expired(t0.Add(time.Minute)))
}

func TestEnvelope_Decode(t *testing.T) {
	data, err := encodeEnvelope(newEnvelope("<p>é</p>", t0.Add(time.Hour), t0))
	require.NoError(t, err)

	env, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "<p>é</p>", env.Value)
	assert.Equal(t, t0.Add(time.Hour).UnixNano(), env.ExpiresAt)

	_, err = decodeEnvelope([]byte{0xc1})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestTTLFor(t *testing.T) {
	ttl, ok := ttlFor(time.Time{}, t0)
	assert.True(t, ok)
	assert.Zero(t, ttl)

	ttl, ok = ttlFor(t0.Add(90*time.Second), t0)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, ttl)

	_, ok = ttlFor(t0, t0)
	assert.False(t, ok)
}
