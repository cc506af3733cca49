package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
)

// PayloadCache is a shared cache of raw partition documents, consulted
// before the source. Get returns ErrCacheMiss when the file is absent.
type PayloadCache interface {
	Get(ctx context.Context, file string) ([]byte, error)
	Set(ctx context.Context, file string, payload []byte) error
}

// RedisCmdable is the subset of the go-redis client used by RedisCache.
type RedisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores partition documents in Redis under sewik:partition:{file}.
type RedisCache struct {
	client RedisCmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache. A zero ttl keeps entries until evicted by Redis.
func NewRedisCache(client RedisCmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "sewik:partition:", ttl: ttl}
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Get implements PayloadCache.
func (c *RedisCache) Get(ctx context.Context, file string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.prefix+file).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", file, err)
	}
	return b, nil
}

// Set implements PayloadCache.
func (c *RedisCache) Set(ctx context.Context, file string, payload []byte) error {
	if err := c.client.Set(ctx, c.prefix+file, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", file, err)
	}
	return nil
}

// recordCache holds decoded partitions for the lifetime of the process.
// Entries are never evicted or replaced.
type recordCache struct {
	mu      sync.RWMutex
	entries map[string][]accident.Record
}

func newRecordCache() *recordCache {
	return &recordCache{entries: make(map[string][]accident.Record)}
}

func (c *recordCache) get(file string) ([]accident.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	records, ok := c.entries[file]
	return records, ok
}

// add stores records unless file is already present, and returns the entry
// that is cached afterwards.
func (c *recordCache) add(file string, records []accident.Record) []accident.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[file]; ok {
		return existing
	}
	if records == nil {
		records = []accident.Record{}
	}
	c.entries[file] = records
	return records
}

func (c *recordCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
