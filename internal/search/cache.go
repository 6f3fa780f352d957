package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/metrics"
)

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000

	anonymousCaller = "anonymous"
)

type CacheOptions struct {
	TTL        time.Duration
	MaxEntries int
	// Redis is an optional second level shared between replicas.
	Redis  *RedisCacheBackend
	Logger *slog.Logger
}

type cacheEntry struct {
	results   []domain.SearchResult
	createdAt time.Time
}

// Cache holds merged flat results per (query, caller, adult flag). Entries expire
// TTL after Put; when the entry count passes MaxEntries expired entries are swept
// and then the oldest are evicted.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	redis      *RedisCacheBackend
	logger     *slog.Logger
}

func NewCache(opts CacheOptions) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		redis:      opts.Redis,
		logger:     logger,
	}
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns a copy of the live entry for key. Expired entries are misses.
func (c *Cache) Get(ctx context.Context, key string, now time.Time) ([]domain.SearchResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Sub(entry.createdAt) < c.ttl {
		metrics.CacheHitsTotal.Inc()
		return domain.CloneResults(entry.results), true
	}

	if c.redis != nil {
		results, createdAt, found, err := c.redis.Get(ctx, key)
		if err != nil {
			c.logger.Debug("redis cache get failed", slog.String("error", err.Error()))
		} else if found && len(results) > 0 && now.Sub(createdAt) < c.ttl {
			metrics.CacheHitsTotal.Inc()
			// The local copy expires when the shared entry does.
			c.storeMemory(key, results, createdAt)
			return domain.CloneResults(results), true
		}
	}

	metrics.CacheMissesTotal.Inc()
	return nil, false
}

// Put stores results under key. Empty result sets are never cached.
func (c *Cache) Put(ctx context.Context, key string, results []domain.SearchResult, now time.Time) {
	if len(results) == 0 {
		return
	}
	c.storeMemory(key, results, now)
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, results, now, c.ttl); err != nil {
			c.logger.Debug("redis cache set failed", slog.String("error", err.Error()))
		}
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) storeMemory(key string, results []domain.SearchResult, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{results: domain.CloneResults(results), createdAt: now}
	c.trimLocked(now)
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

func (c *Cache) trimLocked(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		return
	}
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.createdAt.Before(oldest) {
				oldestKey = key
				oldest = entry.createdAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// BuildCacheKey derives the cache key of a search. The query is trimmed and
// whitespace-collapsed but keeps its case, since upstreams receive it verbatim.
// An empty caller is anonymous.
func BuildCacheKey(query, caller string, includeAdult bool) string {
	normalized := strings.Join(strings.Fields(query), " ")
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = anonymousCaller
	}
	return normalized + ":" + caller + ":" + strconv.FormatBool(includeAdult)
}
