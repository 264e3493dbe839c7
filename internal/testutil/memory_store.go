// Package testutil provides testing utilities for the fragment cache.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/fragcache/pkg/cache"
)

// Clock is a manually advanced clock for TTL tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MemoryStore is an in-memory key/value store that enforces expiry against
// its clock and can be told to fail.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
	clock   func() time.Time

	// Failure injection
	GetErr error
	PutErr error

	// Tracking
	GetCount int
	PutCount int
	LastKey  string
}

// NewMemoryStore creates a store that evaluates expiry with clock.
// A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]cache.Entry),
		clock:   clock,
	}
}

// Get returns the value for key unless it is missing or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCount++
	s.LastKey = key

	if s.GetErr != nil {
		return "", false, s.GetErr
	}

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.IsExpired(s.clock()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.Value, true, nil
}

// Put stores value under key; a zero expiresAt never expires.
func (s *MemoryStore) Put(_ context.Context, key, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCount++
	s.LastKey = key

	if s.PutErr != nil {
		return s.PutErr
	}

	s.entries[key] = cache.Entry{Key: key, Value: value, ExpiresAt: expiresAt, CachedAt: s.clock()}
	return nil
}

// Lookup returns the raw stored record without expiry checks.
func (s *MemoryStore) Lookup(key string) (value string, expiresAt time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.Value, e.ExpiresAt, ok
}

// Inspect returns the live entry for key. It is not tracked.
func (s *MemoryStore) Inspect(_ context.Context, key string) (cache.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.GetErr != nil {
		return cache.Entry{}, false, s.GetErr
	}
	e, ok := s.entries[key]
	if !ok || e.IsExpired(s.clock()) {
		return cache.Entry{}, false, nil
	}
	return e, true, nil
}

// Ping reports GetErr, so a failing store is also unhealthy.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.GetErr
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fail sets the errors returned by Get and Put; nil clears them.
func (s *MemoryStore) Fail(getErr, putErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetErr = getErr
	s.PutErr = putErr
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Counts returns the Get and Put call counts.
func (s *MemoryStore) Counts() (gets, puts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.GetCount, s.PutCount
}

// Reset clears all records and tracking counters.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]cache.Entry)
	s.GetCount = 0
	s.PutCount = 0
	s.LastKey = ""
}
