// Package cache holds the Redis-backed profile cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solodesign/apiserver/types"
)

const profileKeyPrefix = "solodesign:profile:"

// Connect creates a Redis client and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

// ProfileCache stores profiles as JSON keyed by user id. A nil cache or one
// without a client misses on every read and ignores writes.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

// Get reports ok=false on a miss.
func (c *ProfileCache) Get(ctx context.Context, userID string) (types.Profile, bool, error) {
	if c == nil || c.client == nil {
		return types.Profile{}, false, nil
	}
	payload, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Profile{}, false, nil
	}
	if err != nil {
		return types.Profile{}, false, err
	}
	var profile types.Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return types.Profile{}, false, err
	}
	return profile, true, nil
}

func (c *ProfileCache) Set(ctx context.Context, profile types.Profile) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, profileKey(profile.UserID), payload, c.ttl).Err()
}

func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, profileKey(userID)).Err()
}

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}
