package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ cache.Store = (*Redis)(nil)
	_ cache.Store = (*Ristretto)(nil)
	_ cache.Store = (*BigCache)(nil)

	_ cache.Inspector = (*Redis)(nil)
	_ cache.Inspector = (*Ristretto)(nil)
	_ cache.Inspector = (*BigCache)(nil)
)

var (
	// ErrInvalidEntry indicates the stored envelope is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrRejected indicates the backend dropped a write (capacity or contention)
	ErrRejected = errors.New("write rejected by store")
)

// envelope is the stored form of a rendered fragment.
type envelope struct {
	Value     string `msgpack:"v"`
	ExpiresAt int64  `msgpack:"e"` // unix nanoseconds, 0 = no expiry
	CachedAt  int64  `msgpack:"c"`
}

func newEnvelope(value string, expiresAt, now time.Time) envelope {
	env := envelope{Value: value, CachedAt: now.UnixNano()}
	if !expiresAt.IsZero() {
		env.ExpiresAt = expiresAt.UnixNano()
	}
	return env
}

func (e envelope) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() >= e.ExpiresAt
}

// entry converts the stored form into the public record for key.
func (e envelope) entry(key string) cache.Entry {
	out := cache.Entry{
		Key:      key,
		Value:    e.Value,
		CachedAt: time.Unix(0, e.CachedAt),
	}
	if e.ExpiresAt != 0 {
		out.ExpiresAt = time.Unix(0, e.ExpiresAt)
	}
	return out
}

func encodeEnvelope(e envelope) ([]byte, error) {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var e envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return e, nil
}

// ttlFor converts an absolute expiry into a relative TTL.
// ok is false when the entry is already expired and must not be written.
func ttlFor(expiresAt, now time.Time) (ttl time.Duration, ok bool) {
	if expiresAt.IsZero() {
		return 0, true
	}
	ttl = expiresAt.Sub(now)
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}
