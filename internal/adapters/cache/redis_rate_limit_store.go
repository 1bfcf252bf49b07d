package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

const rateLimitPrefix = "affiliation:ratelimit:"

// RedisRateLimitStore counts hits per key in a fixed window stored as a Redis hash.
// The window starts at the first hit and the key expires with it.
type RedisRateLimitStore struct {
	client *redis.Client
}

func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func (s *RedisRateLimitStore) Get(ctx context.Context, key string) (ports.LockoutState, error) {
	data, err := s.client.HGetAll(ctx, rateLimitPrefix+key).Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	if len(data) == 0 {
		return ports.LockoutState{}, nil
	}

	state := ports.LockoutState{}
	if raw, ok := data["hits"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			state.FailedCount = n
		}
	}
	if raw, ok := data["blocked_until"]; ok && raw != "" {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && unix > 0 {
			t := time.Unix(unix, 0).UTC()
			state.LockedUntil = &t
		}
	}
	return state, nil
}

// RecordFailure counts one hit. Once threshold hits are reached the key is
// blocked until the end of the window.
func (s *RedisRateLimitStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.LockoutState, error) {
	redisKey := rateLimitPrefix + key

	count, err := s.client.HIncrBy(ctx, redisKey, "hits", 1).Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return ports.LockoutState{}, err
		}
	}

	state := ports.LockoutState{FailedCount: int(count)}
	if int(count) >= threshold {
		ttl, err := s.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl <= 0 {
			ttl = window
		}
		blockedUntil := now.Add(ttl).UTC()
		_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, redisKey, "blocked_until", blockedUntil.Unix())
			p.Expire(ctx, redisKey, ttl)
			return nil
		})
		if err != nil {
			return ports.LockoutState{}, err
		}
		state.LockedUntil = &blockedUntil
	}
	return state, nil
}
