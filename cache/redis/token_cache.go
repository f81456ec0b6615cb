// Package redis implements the token cache index on Redis, for
// deployments where multiple instances share the fast path.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/sentinel/cache"
	"go.pilab.hu/sentinel/domain"
)

// TokenCache implements domain.TokenCache using Redis SETEX/GET/DEL.
type TokenCache struct {
	client *redis.Client
	prefix string
}

// NewTokenCache creates a new [TokenCache] on client. prefix namespaces
// the keys so several deployments can share one Redis.
func NewTokenCache(client *redis.Client, prefix string) *TokenCache {
	return &TokenCache{client: client, prefix: prefix}
}

func (r *TokenCache) redisKey(accessToken string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, cache.HashToken(accessToken))
}

// Set stores the owning user ID under the access token with the given
// TTL. Redis expires the key on its own; no sweep is needed.
func (r *TokenCache) Set(ctx context.Context, accessToken, userID string, ttl time.Duration) error {
	if err := r.client.SetEx(ctx, r.redisKey(accessToken), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token in redis: %w", err)
	}
	return nil
}

// Get returns the owning user ID, or ("", nil) when the key is absent
// or already expired.
func (r *TokenCache) Get(ctx context.Context, accessToken string) (string, error) {
	val, err := r.client.Get(ctx, r.redisKey(accessToken)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token from redis: %w", err)
	}
	return val, nil
}

// Evict removes the access token's entry.
func (r *TokenCache) Evict(ctx context.Context, accessToken string) error {
	if err := r.client.Del(ctx, r.redisKey(accessToken)).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}
	return nil
}

var _ domain.TokenCache = (*TokenCache)(nil)
