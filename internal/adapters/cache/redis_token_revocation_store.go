package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenRevocationStore flags revoked refresh-token ids until the token would have expired.
type RedisTokenRevocationStore struct {
	client *redis.Client
}

func NewRedisTokenRevocationStore(client *redis.Client) *RedisTokenRevocationStore {
	return &RedisTokenRevocationStore{client: client}
}

func (s *RedisTokenRevocationStore) MarkRevoked(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(ctx, "affiliation:revoked:"+tokenID, "1", ttl).Err()
}

func (s *RedisTokenRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, "affiliation:revoked:"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
