// Package cache provides Redis-backed caching of inference payloads so
// re-scanning identical text skips the backend round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// PayloadCache caches inference payloads keyed by engine, model and a
// content hash of the text. Cache failures are never fatal: a broken Redis
// behaves like a permanent miss.
type PayloadCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   int64
	misses int64
}

// NewPayloadCache connects to Redis and verifies the connection.
func NewPayloadCache(config *Config, logger *zap.Logger) (*PayloadCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Payload cache initialized",
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL),
	)

	return &PayloadCache{client: client, config: config, logger: logger}, nil
}

// key derives the cache key from engine, model and text content.
func (c *PayloadCache) key(engine, model, text string) string {
	sum := sha256.Sum256([]byte(engine + "\x00" + model + "\x00" + text))
	return c.config.KeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns a cached payload, or false on miss or any cache error.
func (c *PayloadCache) Get(ctx context.Context, engine, model, text string) (*pii.InferencePayload, bool) {
	data, err := c.client.Get(ctx, c.key(engine, model, text)).Result()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var payload pii.InferencePayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		c.logger.Warn("Corrupted cache entry, deleting", zap.Error(err))
		c.client.Del(ctx, c.key(engine, model, text))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return &payload, true
}

// Set stores a payload with the configured TTL. Errors are logged only.
func (c *PayloadCache) Set(ctx context.Context, engine, model, text string, payload *pii.InferencePayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("Failed to encode payload for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(engine, model, text), data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Warn("Failed to store payload in cache", zap.Error(err))
	}
}

// GetStats returns current hit/miss counters.
func (c *PayloadCache) GetStats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}

// Close releases the Redis connection pool.
func (c *PayloadCache) Close() error {
	return c.client.Close()
}
