package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheEntry is a cached value with its insertion timestamp and expiry.
type CacheEntry struct {
	Data       interface{} `json:"data"`
	InsertedAt time.Time   `json:"inserted_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// CacheStats tracks cache effectiveness.
type CacheStats struct {
	HitRate     float64 `json:"hit_rate"`
	TotalHits   int64   `json:"total_hits"`
	TotalMisses int64   `json:"total_misses"`
	TotalSets   int64   `json:"total_sets"`
	ErrorCount  int64   `json:"error_count"`
	LastError   string  `json:"last_error,omitempty"`
}

// CacheTier is the storage behind the store's TTL cache. A lookup at or
// past the entry's expiry is a miss; expired entries are evicted on read.
type CacheTier interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Stats() CacheStats
	Close() error
}

// memoryCache is the default in-process tier.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	stats   CacheStats

	// now is swapped out in tests to exercise expiry deterministically.
	now func() time.Time
}

// NewMemoryCache builds the in-process cache tier.
func NewMemoryCache() CacheTier {
	return &memoryCache{
		entries: make(map[string]CacheEntry),
		now:     time.Now,
	}
}

func (m *memoryCache) Get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.stats.TotalMisses++
		m.updateHitRate()
		return nil, false
	}
	if !m.now().Before(entry.ExpiresAt) {
		delete(m.entries, key)
		m.stats.TotalMisses++
		m.updateHitRate()
		return nil, false
	}

	m.stats.TotalHits++
	m.updateHitRate()
	return entry.Data, true
}

func (m *memoryCache) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.entries[key] = CacheEntry{
		Data:       value,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.stats.TotalSets++
}

func (m *memoryCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memoryCache) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *memoryCache) Close() error { return nil }

func (m *memoryCache) updateHitRate() {
	total := m.stats.TotalHits + m.stats.TotalMisses
	if total > 0 {
		m.stats.HitRate = float64(m.stats.TotalHits) / float64(total)
	}
}

// redisCache is the optional shared tier, useful when several dashboard
// processes watch the same backend. Values round-trip through JSON, so
// concrete types come back as generic maps; callers of the shared tier
// should treat cached data as decoded JSON.
type redisCache struct {
	client *redis.Client
	prefix string

	mu    sync.Mutex
	stats CacheStats
}

// NewRedisCache builds the Redis-backed cache tier.
func NewRedisCache(addr, password string, db int, prefix string) CacheTier {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return newRedisCache(client, prefix)
}

// newRedisCache wraps an existing client; tests inject a mock here.
func newRedisCache(client *redis.Client, prefix string) *redisCache {
	return &redisCache{client: client, prefix: prefix}
}

func (r *redisCache) Get(key string) (interface{}, bool) {
	result, err := r.client.Get(context.Background(), r.prefix+key).Result()
	if err != nil {
		r.mu.Lock()
		if err == redis.Nil {
			r.stats.TotalMisses++
		} else {
			r.stats.ErrorCount++
			r.stats.LastError = fmt.Sprintf("get: %v", err)
		}
		r.updateHitRateLocked()
		r.mu.Unlock()
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(result), &entry); err != nil {
		r.mu.Lock()
		r.stats.ErrorCount++
		r.stats.LastError = fmt.Sprintf("decode: %v", err)
		r.mu.Unlock()
		return nil, false
	}

	// Redis expires the key itself, but guard against clock skew between
	// writers.
	if !time.Now().Before(entry.ExpiresAt) {
		r.Delete(key)
		r.mu.Lock()
		r.stats.TotalMisses++
		r.updateHitRateLocked()
		r.mu.Unlock()
		return nil, false
	}

	r.mu.Lock()
	r.stats.TotalHits++
	r.updateHitRateLocked()
	r.mu.Unlock()
	return entry.Data, true
}

func (r *redisCache) Set(key string, value interface{}, ttl time.Duration) {
	now := time.Now()
	entry := CacheEntry{Data: value, InsertedAt: now, ExpiresAt: now.Add(ttl)}

	data, err := json.Marshal(entry)
	if err != nil {
		r.mu.Lock()
		r.stats.ErrorCount++
		r.stats.LastError = fmt.Sprintf("encode: %v", err)
		r.mu.Unlock()
		return
	}

	if err := r.client.Set(context.Background(), r.prefix+key, data, ttl).Err(); err != nil {
		r.mu.Lock()
		r.stats.ErrorCount++
		r.stats.LastError = fmt.Sprintf("set: %v", err)
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.stats.TotalSets++
	r.mu.Unlock()
}

func (r *redisCache) Delete(key string) {
	_ = r.client.Del(context.Background(), r.prefix+key).Err()
}

func (r *redisCache) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *redisCache) Close() error { return r.client.Close() }

func (r *redisCache) updateHitRateLocked() {
	total := r.stats.TotalHits + r.stats.TotalMisses
	if total > 0 {
		r.stats.HitRate = float64(r.stats.TotalHits) / float64(total)
	}
}
