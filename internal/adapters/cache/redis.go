package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/contactsift/contact-verifier/internal/core"
)

const (
	domainKeyPrefix = "cv:domain:"
	probeKeyPrefix  = "cv:probe:"
)

// RedisCache shares the domain and probe caches across verifier instances
// with native key expiry, so Cleanup has nothing to do.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to Redis using a redis:// URL.
func NewRedisCache(url string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, logger: logger}, nil
}

// GetDomain retrieves an unexpired DomainRecord.
func (c *RedisCache) GetDomain(ctx context.Context, key string) (*core.DomainRecord, bool) {
	payload, err := c.client.Get(ctx, domainKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Failed to query domain cache", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}

	var rec core.DomainRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		c.logger.Error("Failed to decode cached domain record", zap.Error(err))
		return nil, false
	}
	return &rec, true
}

// SetDomain stores a DomainRecord under the given key and TTL.
func (c *RedisCache) SetDomain(ctx context.Context, key string, rec core.DomainRecord, ttl time.Duration) {
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error("Failed to encode domain record", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, domainKeyPrefix+key, payload, ttl).Err(); err != nil {
		c.logger.Error("Failed to store domain cache entry", zap.Error(err), zap.String("key", key))
	}
}

// GetProbe retrieves an unexpired ProbeResult.
func (c *RedisCache) GetProbe(ctx context.Context, address string) (*core.ProbeResult, bool) {
	payload, err := c.client.Get(ctx, probeKeyPrefix+address).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Failed to query probe cache", zap.Error(err), zap.String("address", address))
		}
		return nil, false
	}

	var res core.ProbeResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		c.logger.Error("Failed to decode cached probe result", zap.Error(err))
		return nil, false
	}
	return &res, true
}

// SetProbe stores a ProbeResult under the given TTL.
func (c *RedisCache) SetProbe(ctx context.Context, res core.ProbeResult, ttl time.Duration) {
	payload, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("Failed to encode probe result", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, probeKeyPrefix+res.Address, payload, ttl).Err(); err != nil {
		c.logger.Error("Failed to store probe cache entry", zap.Error(err), zap.String("address", res.Address))
	}
}

// Cleanup is a no-op: Redis expires keys natively.
func (c *RedisCache) Cleanup(_ context.Context) error {
	return nil
}

// Stop closes the Redis connection.
func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
	}
}
