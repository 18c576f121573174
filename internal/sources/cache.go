package sources

import (
	"fmt"
	"log/slog"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"

	"github.com/zimshelf/zim-library/internal/config"
	"github.com/zimshelf/zim-library/internal/httpclient"
)

// NewCache builds the catalog response cache selected by cfg. The returned
// cleanup releases backend connections and is never nil. A nil cache means
// caching is disabled.
func NewCache(cfg *config.CatalogConfig) (httpclient.Cache, func() error, error) {
	noop := func() error { return nil }

	switch cfg.GetCacheType() {
	case config.CacheTypeNone:
		slog.Debug("Catalog response cache disabled")
		return nil, noop, nil
	case config.CacheTypeMemory:
		return httpclient.NewMemoryCache(cfg.GetCacheTTL()), noop, nil
	case config.CacheTypeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.Address})
		slog.Info("Using Redis catalog cache", "address", cfg.Cache.Address)
		return httpclient.NewRedisCache(client), client.Close, nil
	case config.CacheTypeMemcached:
		client := memcache.New(cfg.Cache.Address)
		slog.Info("Using memcached catalog cache", "address", cfg.Cache.Address)
		return httpclient.NewMemcachedCache(client), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported catalog cache type: %s", cfg.GetCacheType())
	}
}
