package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a fetched catalog stays fresh
const DefaultCacheTTL = time.Hour

const cacheKeyPrefix = "zim-library:catalog:"

// Cache stores response bodies by key
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// cacheKey hashes the URL so it is valid for every backend, memcached
// included (250 bytes, no whitespace).
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// MemoryCache keeps responses in process
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates an in-process cache whose entries expire after ttl
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{c: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached value for key
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	return data, ok, nil
}

// Set stores value under key
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// RedisCache shares responses between processes through Redis
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing Redis client
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached value for key
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores value under key
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MemcachedCache shares responses between processes through memcached.
// Catalogs larger than the server item limit are simply not cached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache wraps an existing memcached client
func NewMemcachedCache(client *memcache.Client) *MemcachedCache {
	return &MemcachedCache{client: client}
}

// Get returns the cached value for key
func (m *MemcachedCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memcached get: %w", err)
	}
	return item.Value, true, nil
}

// Set stores value under key
func (m *MemcachedCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl / time.Second),
	})
	if err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}
