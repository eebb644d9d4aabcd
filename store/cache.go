package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opentip/funnelhub/logger"
)

// Cache is the hot-path projection of the payment store. It is advisory:
// every method may fail or miss without affecting correctness, the cold
// store is always consulted as the source of truth.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Shutdown() error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(redisUri string) (*redisCache, error) {
	opts, err := redis.ParseURL(redisUri)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	logger.Logger.Info().Str("addr", opts.Addr).Msg("Connected to redis hot cache")

	return &redisCache{client: client}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		// never cache without an expiry; a forgotten entry must age out
		return nil
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *redisCache) Shutdown() error {
	return c.client.Close()
}

// noopCache keeps the engine fully functional with no redis configured;
// every read is a miss and falls through to cold storage.
type noopCache struct {
}

func NewNoopCache() *noopCache {
	return &noopCache{}
}

func (c *noopCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (c *noopCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

func (c *noopCache) Delete(ctx context.Context, key string) error {
	return nil
}

func (c *noopCache) Shutdown() error {
	return nil
}
