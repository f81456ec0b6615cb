// Package cache provides TTL-bound secondary indexes keyed by access
// token. The index is never the source of truth: a miss means "ask the
// store", and entries expire no later than the backing token row.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/sentinel/domain"
)

// MemoryTokenCache implements domain.TokenCache using ttlcache. Suited
// to tests and single-node deployments; multi-node deployments share a
// redis backend instead.
type MemoryTokenCache struct {
	cache *ttlcache.Cache[string, string]
}

// NewMemoryTokenCache creates an in-memory token cache with automatic
// expiry cleanup.
func NewMemoryTokenCache() *MemoryTokenCache {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryTokenCache{cache: cache}
}

// Set implements domain.TokenCache.Set.
func (c *MemoryTokenCache) Set(_ context.Context, accessToken, userID string, ttl time.Duration) error {
	c.cache.Set(HashToken(accessToken), userID, ttl)
	return nil
}

// Get implements domain.TokenCache.Get. A miss or an expired entry
// yields ("", nil).
func (c *MemoryTokenCache) Get(_ context.Context, accessToken string) (string, error) {
	item := c.cache.Get(HashToken(accessToken))
	if item == nil || item.IsExpired() {
		return "", nil
	}
	return item.Value(), nil
}

// Evict removes an access token from the cache.
func (c *MemoryTokenCache) Evict(_ context.Context, accessToken string) error {
	c.cache.Delete(HashToken(accessToken))
	return nil
}

// Close stops the cleanup goroutine.
func (c *MemoryTokenCache) Close() {
	c.cache.Stop()
}

var _ domain.TokenCache = (*MemoryTokenCache)(nil)
