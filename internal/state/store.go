// Package state is the process-wide key/value store shared by page
// controllers: plain state with per-key subscriptions, a TTL cache tier,
// and a de-duplicating fetch wrapper for remote calls.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelpulse/modelpulse/internal/metrics"
)

// DefaultTTL applies when a caller requests caching without a TTL.
const DefaultTTL = 30 * time.Second

// FetchFunc loads a value from the backend.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Subscriber observes writes to one key.
type Subscriber func(value interface{})

// SetOptions tune a Set call.
type SetOptions struct {
	Cache    bool          // Also store a timestamped cache copy
	CacheTTL time.Duration // TTL of the cache copy; DefaultTTL when zero
	Silent   bool          // Skip subscriber notification
}

// FetchOptions tune a GetCachedOrFetch call.
type FetchOptions struct {
	CacheTTL     time.Duration // TTL for the fetched value; DefaultTTL when zero
	ForceRefresh bool          // Bypass the cache read (not the write)
}

// inflight is one outstanding fetch. Every caller racing on the key blocks
// on done and observes the same value or error.
type inflight struct {
	done  chan struct{}
	value interface{}
	err   error
}

type subEntry struct {
	id int
	fn Subscriber
}

// Store holds plain state, the cache tier, subscriptions, and the pending
// request map. One instance is shared by all controllers.
type Store struct {
	mu          sync.Mutex
	state       map[string]interface{}
	subscribers map[string][]subEntry
	pending     map[string]*inflight
	nextSubID   int

	cache   CacheTier
	metrics *metrics.Set
}

// NewStore builds a store over the given cache tier. A nil tier selects the
// in-process cache; metrics may be nil.
func NewStore(cache CacheTier, m *metrics.Set) *Store {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Store{
		state:       make(map[string]interface{}),
		subscribers: make(map[string][]subEntry),
		pending:     make(map[string]*inflight),
		cache:       cache,
		metrics:     m,
	}
}

// Set stores the value, optionally writes a cache copy, and unless
// suppressed notifies the key's subscribers synchronously in registration
// order.
func (s *Store) Set(key string, value interface{}, opts SetOptions) {
	s.mu.Lock()
	s.state[key] = value
	subs := make([]subEntry, len(s.subscribers[key]))
	copy(subs, s.subscribers[key])
	s.mu.Unlock()

	if opts.Cache {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		s.cache.Set(key, value, ttl)
	}

	if opts.Silent {
		return
	}
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("key", key).Interface("panic", r).Msg("state subscriber panicked")
				}
			}()
			sub.fn(value)
		}()
	}
}

// Get reads a key: unexpired cache copy first, then plain state, then the
// supplied default. Expired cache entries are evicted by the tier on read.
func (s *Store) Get(key string, defaultValue interface{}) interface{} {
	if v, ok := s.cache.Get(key); ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.state[key]; ok {
		return v
	}
	return defaultValue
}

// Delete removes the key from both plain state and the cache.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.state, key)
	s.mu.Unlock()
	s.cache.Delete(key)
}

// Subscribe registers an observer for writes to key and returns its
// removal closure. Removing the last subscriber frees the underlying set.
func (s *Store) Subscribe(key string, fn Subscriber) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[key] = append(s.subscribers[key], subEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[key]
		for i, sub := range subs {
			if sub.id == id {
				subs = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(s.subscribers, key)
		} else {
			s.subscribers[key] = subs
		}
	}
}

// GetCachedOrFetch is the cache-aside path for remote data. Unless
// ForceRefresh is set, an unexpired cached value is returned directly. At
// most one fetch per key is outstanding at any time: callers racing on the
// same key during the in-flight window all receive the identical result or
// identical error. Failed fetches are not cached; the pending entry is
// always cleared once the fetch settles.
func (s *Store) GetCachedOrFetch(ctx context.Context, key string, fetch FetchFunc, opts FetchOptions) (interface{}, error) {
	if !opts.ForceRefresh {
		if v, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit()
			return v, nil
		}
		s.metrics.CacheMiss()
	}

	s.mu.Lock()
	if flight, ok := s.pending[key]; ok {
		s.mu.Unlock()
		select {
		case <-flight.done:
			return flight.value, flight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	flight := &inflight{done: make(chan struct{})}
	s.pending[key] = flight
	s.mu.Unlock()

	value, err := fetch(ctx)

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err == nil {
		s.cache.Set(key, value, ttl)
	}

	flight.value = value
	flight.err = err
	close(flight.done)

	// Invalidate may have replaced or removed the pending entry while the
	// fetch was out; only clear our own.
	s.mu.Lock()
	if s.pending[key] == flight {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	return value, err
}

// Invalidate drops the cached value and any in-flight pending entry for
// key, forcing the next GetCachedOrFetch to hit the backend again. Used
// after mutating operations so stale collections are never served.
func (s *Store) Invalidate(key string) {
	s.cache.Delete(key)
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// CacheStats reports the cache tier's counters.
func (s *Store) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Close releases the cache tier.
func (s *Store) Close() error {
	return s.cache.Close()
}
