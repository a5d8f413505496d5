// Package cache provides a small key/value cache abstraction with a
// Redis-backed primary implementation and an in-memory fallback, the
// same dual-strategy design the teacher uses for its RAG response
// cache (internal/services.CacheService), generalized here to the one
// thing this server actually needs caching for: the 1-hour-TTL user
// profile lookup described in spec §5 ("Profile cache (1-hour TTL per
// userId)").
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service is the interface both cache backends satisfy.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryCache is an in-process fallback used when Redis is unreachable
// at startup. Access is synchronized; unlike the teacher's
// single-request HTTP handler model, this server's cache is shared by
// many concurrently-running session goroutines.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
}

type cacheEntry struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]cacheEntry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	entry, ok := m.store[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("cache: key not found: %s", key)
	}
	if time.Now().After(entry.expiration) {
		m.mu.Lock()
		delete(m.store, key)
		m.mu.Unlock()
		return fmt.Errorf("cache: key expired: %s", key)
	}
	return json.Unmarshal(entry.value, dest)
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.store[key] = cacheEntry{value: data, expiration: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.store, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.store = make(map[string]cacheEntry)
	m.mu.Unlock()
	return nil
}

// RedisCache is the primary, cross-process cache backend.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an already-constructed redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("cache: key not found: %s", key)
		}
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
