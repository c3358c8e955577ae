package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisConfig holds the connection settings of the lookup cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type RedisIdentityCache struct {
	client *redis.Client
	prefix string
}

func NewRedisIdentityCache(cfg RedisConfig) (*RedisIdentityCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisIdentityCacheWithClient(client, cfg.Prefix), nil
}

// NewRedisIdentityCacheWithClient wraps an existing client.
func NewRedisIdentityCacheWithClient(client *redis.Client, prefix string) *RedisIdentityCache {
	return &RedisIdentityCache{client: client, prefix: prefix}
}

func (c *RedisIdentityCache) BuildKey(partial domain.PartialIdentity) string {
	return fmt.Sprintf("%s:identity:%s", c.prefix, partial.String())
}

func (c *RedisIdentityCache) Get(ctx context.Context, key string) (*IdentityCacheResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var result IdentityCacheResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &result, nil
}

func (c *RedisIdentityCache) Set(ctx context.Context, key string, result *IdentityCacheResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisIdentityCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

func (c *RedisIdentityCache) Close() error {
	return c.client.Close()
}
