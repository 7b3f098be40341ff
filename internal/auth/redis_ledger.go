package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationLedger keeps revoked jtis in Redis, letting key TTLs do the
// pruning.
type RedisRevocationLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisRevocationLedger(client *redis.Client, prefix string) *RedisRevocationLedger {
	return &RedisRevocationLedger{client: client, prefix: prefix}
}

func (l *RedisRevocationLedger) key(tokenID string) string {
	return fmt.Sprintf("%s:revoked:%s", l.prefix, tokenID)
}

func (l *RedisRevocationLedger) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// already past natural expiry, nothing to record
		return nil
	}
	err := l.client.Set(ctx, l.key(tokenID), revokedAt.Unix(), ttl).Err()
	if err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}

func (l *RedisRevocationLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := l.client.Get(ctx, l.key(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lookup: %w", err)
	}
	return true, nil
}

// PruneExpired is a no-op: entries carry their own TTL.
func (l *RedisRevocationLedger) PruneExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
