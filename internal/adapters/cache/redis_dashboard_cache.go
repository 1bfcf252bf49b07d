package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisDashboardCache struct {
	client *redis.Client
}

func NewRedisDashboardCache(client *redis.Client) *RedisDashboardCache {
	return &RedisDashboardCache{client: client}
}

// Get returns (nil, nil) on a miss.
func (c *RedisDashboardCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, "affiliation:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

func (c *RedisDashboardCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, "affiliation:"+key, payload, ttl).Err()
}
