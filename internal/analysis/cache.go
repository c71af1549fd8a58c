package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Cache deduplicates repeat analyses by cache key. Misses caused by backend
// trouble are tolerated: a failed lookup means the request is re-analyzed,
// never refused.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, result Result)
}

// MemoryCache is the default process-local, volatile cache.
type MemoryCache struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{results: make(map[string]Result)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[key]
	return result, ok
}

// Set stores a result. Last writer wins when two analyses of the same URL
// race, which is the documented behaviour.
func (c *MemoryCache) Set(_ context.Context, key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = result
}

const cacheKeyPrefix = "analysis:"

// RedisCache stores analysis results in Redis, for deployments that want
// results to outlive the process. The external contract is unchanged.
type RedisCache struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		logger: log.New(log.Writer(), "[CACHE] ", log.LstdFlags),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	val, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Printf("get %s: %v", key, err)
		}
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		c.logger.Printf("unmarshal %s: %v", key, err)
		return Result{}, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Printf("marshal %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, data, 0).Err(); err != nil {
		c.logger.Printf("set %s: %v", key, err)
	}
}
