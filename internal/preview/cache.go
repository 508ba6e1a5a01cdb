package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/reportbuilder/model"
)

// Cache stores built preview payloads by key.
type Cache interface {
	// Get returns the cached payload for key. found is false on a miss.
	Get(ctx context.Context, key string) (payload *model.PreviewPayload, found bool, err error)

	// Set stores a payload with a TTL.
	Set(ctx context.Context, key string, payload model.PreviewPayload, ttl time.Duration) error
}

// --- MemoryCache ---

// MemoryCache is an in-memory Cache with TTL support. Suitable for testing
// and single-instance deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	payload   model.PreviewPayload
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory preview cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// Get looks up a cached payload, dropping it when expired.
func (c *MemoryCache) Get(_ context.Context, key string) (*model.PreviewPayload, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	// Check TTL.
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	payload := entry.payload
	return &payload, true, nil
}

// Set stores a payload with TTL.
func (c *MemoryCache) Set(_ context.Context, key string, payload model.PreviewPayload, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &memEntry{payload: payload, expiresAt: c.now().Add(ttl)}
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// --- RedisCache ---

// RedisCache is a Redis-backed Cache with TTL.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache creates a new Redis-backed preview cache.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Get looks up a cached payload in Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.PreviewPayload, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var payload model.PreviewPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal preview %q: %w", key, err)
	}
	return &payload, true, nil
}

// Set saves a payload in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, payload model.PreviewPayload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal preview: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
