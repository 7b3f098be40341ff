package auth

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CachedLedger puts a small in-process TTL cache in front of a
// RevocationLedger so ValidateBearer does not hit the store on every request.
// The cache TTL bounds how long a freshly revoked token can still pass
// validation on a node that cached the "not revoked" answer.
type CachedLedger struct {
	inner RevocationLedger
	cache *ttlcache.Cache[string, bool]
}

func NewCachedLedger(inner RevocationLedger, ttl time.Duration) *CachedLedger {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, bool](ttl),
		ttlcache.WithDisableTouchOnHit[string, bool](),
	)
	go cache.Start()

	return &CachedLedger{inner: inner, cache: cache}
}

func (c *CachedLedger) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	if err := c.inner.Revoke(ctx, tokenID, revokedAt, expiresAt); err != nil {
		return err
	}
	c.cache.Set(tokenID, true, ttlcache.DefaultTTL)
	return nil
}

func (c *CachedLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if item := c.cache.Get(tokenID); item != nil {
		return item.Value(), nil
	}
	revoked, err := c.inner.IsRevoked(ctx, tokenID)
	if err != nil {
		return false, err
	}
	c.cache.Set(tokenID, revoked, ttlcache.DefaultTTL)
	return revoked, nil
}

func (c *CachedLedger) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.inner.PruneExpired(ctx, now)
}

func (c *CachedLedger) Stop() {
	c.cache.Stop()
}
