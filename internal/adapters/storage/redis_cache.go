package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/ports"
	"go.uber.org/zap"
)

const redisKeyPrefix = "phishing-risk:registration:"

// RedisCache implements ports.RegistrationCache on Redis. Expiry is delegated
// to Redis key TTLs.
type RedisCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to Redis and checks the connection
func NewRedisCache(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisCache{rdb: rdb, logger: logger}, nil
}

// Get returns the live record of a domain
func (c *RedisCache) Get(ctx context.Context, domainName string) (*domain.WhoisRecord, error) {
	val, err := c.rdb.Get(ctx, redisKey(domainName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registration cache: %w", err)
	}

	record := &domain.WhoisRecord{}
	if err := json.Unmarshal([]byte(val), record); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("domain", domainName), zap.Error(err))
		c.rdb.Del(ctx, redisKey(domainName))
		return nil, ports.ErrCacheMiss
	}
	return record, nil
}

// Set stores a record for ttl
func (c *RedisCache) Set(ctx context.Context, domainName string, record *domain.WhoisRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record of %s: %w", domainName, err)
	}
	if err := c.rdb.Set(ctx, redisKey(domainName), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store record of %s: %w", domainName, err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func redisKey(domainName string) string {
	return redisKeyPrefix + domainName
}
