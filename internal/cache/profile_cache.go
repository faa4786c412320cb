package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lorelink/internal/models"
)

// ProfileCache is a read-through cache for author lookups during feed composition.
// Misses return (nil, nil).
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Set(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, userID string) error
}

// Connect accepts either a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type RedisProfileCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisProfileCache(client redis.Cmdable, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{client: client, ttl: ttl}
}

func profileKey(userID string) string {
	return "lorelink:profile:" + userID
}

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (*models.Profile, error) {
	raw, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: profile cache get: %w", models.ErrNetwork, err)
	}

	var profile models.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		// a stale encoding is treated as a miss
		return nil, nil
	}
	return &profile, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile *models.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	if err := c.client.Set(ctx, profileKey(profile.UserID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: profile cache set: %w", models.ErrNetwork, err)
	}
	return nil
}

func (c *RedisProfileCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, profileKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: profile cache delete: %w", models.ErrNetwork, err)
	}
	return nil
}

type NoopProfileCache struct{}

func (NoopProfileCache) Get(context.Context, string) (*models.Profile, error) { return nil, nil }

func (NoopProfileCache) Set(context.Context, *models.Profile) error { return nil }

func (NoopProfileCache) Delete(context.Context, string) error { return nil }
