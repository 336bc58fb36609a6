package datasources

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/normalize"
)

// Cache stores fetched source tables so repeated runs against the same
// portal dataset don't refetch. The core never depends on this; callers
// cache at will.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache returns a process-local cache.
func NewMemoryCache() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct{ r *redis.Client }

// NewCache returns a Redis-backed cache when an address is configured and
// falls back to the in-memory cache otherwise.
func NewCache(settings config.RedisSettings) Cache {
	if settings.Addr == "" {
		return NewMemoryCache()
	}
	return &redisCache{r: redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Password: settings.Password,
		DB:       settings.DB,
	})}
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}

// CacheStats receives hit/miss notifications, typically from the metrics
// registry. Optional.
type CacheStats interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedFetcher wraps a Fetcher with table caching keyed by source name.
type CachedFetcher struct {
	inner Fetcher
	cache Cache
	ttl   time.Duration
	stats CacheStats
}

// NewCachedFetcher wraps inner. stats may be nil.
func NewCachedFetcher(inner Fetcher, cache Cache, ttl time.Duration, stats CacheStats) *CachedFetcher {
	return &CachedFetcher{inner: inner, cache: cache, ttl: ttl, stats: stats}
}

func (f *CachedFetcher) Fetch(ctx context.Context, src config.SourceMapping) (RawTable, error) {
	key := "table:" + src.Name
	if data, ok := f.cache.Get(key); ok {
		var rows []normalize.RawRow
		if err := json.Unmarshal(data, &rows); err == nil {
			if f.stats != nil {
				f.stats.RecordCacheHit("source_table")
			}
			return RawTable{Source: src.Name, Rows: rows}, nil
		}
	}
	if f.stats != nil {
		f.stats.RecordCacheMiss("source_table")
	}

	table, err := f.inner.Fetch(ctx, src)
	if err != nil {
		return RawTable{}, err
	}
	if data, err := json.Marshal(table.Rows); err == nil {
		f.cache.Set(key, data, f.ttl)
	}
	return table, nil
}
