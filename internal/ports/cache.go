package ports

import (
	"context"
	"time"
)

// LockoutState is the current window envelope for a throttled key.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// LockoutStore keeps short-lived counters; the public intake uses it as a
// fixed-window rate limiter keyed by client IP.
type LockoutStore interface {
	Get(ctx context.Context, key string) (LockoutState, error)
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (LockoutState, error)
}

// TokenRevocationStore keeps revoked refresh-token ids until they would expire anyway.
type TokenRevocationStore interface {
	MarkRevoked(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// DashboardCache stores rendered dashboard payloads.
// A miss is reported as (nil, nil).
type DashboardCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}
