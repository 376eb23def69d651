package redis

// Package redis provides the Redis-backed claims cache: the gatekeeper's
// fast path from session token to role claims.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
)

// ClaimsCache stores JSON-marshaled role claims keyed by session token,
// with the TTL enforced by Redis itself. A miss is not an error; callers
// fall back to the session validator.
type ClaimsCache struct {
	client redis.UniversalClient
	prefix string
}

// NewClaimsCache creates a claims cache with the default key prefix.
func NewClaimsCache(client redis.UniversalClient) *ClaimsCache {
	return &ClaimsCache{client: client, prefix: "claims:"}
}

// NewClaimsCacheWithPrefix creates a claims cache with a custom key prefix.
func NewClaimsCacheWithPrefix(client redis.UniversalClient, prefix string) *ClaimsCache {
	return &ClaimsCache{client: client, prefix: prefix}
}

// Put stores the claims for a token. A non-positive ttl is rejected so a
// dead session can never be cached alive.
func (c *ClaimsCache) Put(ctx context.Context, token string, claims domainauth.RoleClaims, ttl time.Duration) error {
	if token == "" {
		return errors.New("claims cache: token cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("claims cache: ttl must be positive")
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	return c.client.Set(ctx, c.prefix+token, data, ttl).Err()
}

// Get returns the cached claims and whether they were present.
func (c *ClaimsCache) Get(ctx context.Context, token string) (domainauth.RoleClaims, bool, error) {
	if token == "" {
		return domainauth.RoleClaims{}, false, nil
	}

	data, err := c.client.Get(ctx, c.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.RoleClaims{}, false, nil
		}
		return domainauth.RoleClaims{}, false, fmt.Errorf("redis get: %w", err)
	}

	var claims domainauth.RoleClaims
	if unmarshalErr := json.Unmarshal([]byte(data), &claims); unmarshalErr != nil {
		// A corrupt entry is treated as a miss after best-effort cleanup.
		_ = c.client.Del(ctx, c.prefix+token).Err()
		return domainauth.RoleClaims{}, false, nil
	}
	return claims, true, nil
}

// Invalidate drops the cached claims for a token. Logout and role changes
// call this so the fast path never outlives the session.
func (c *ClaimsCache) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return c.client.Del(ctx, c.prefix+token).Err()
}
