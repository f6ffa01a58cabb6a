package webhook

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ReplayCache remembers webhook tokens for a while. Remember returns false
// when the token was already seen. Forget drops a token so a redelivery of
// the same webhook is accepted again.
type ReplayCache interface {
	Remember(ctx context.Context, token string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, token string) error
}

type memoryReplayCache struct {
	cache *cache.Cache
}

// NewMemoryReplayCache only protects a single replica.
func NewMemoryReplayCache(cleanupInterval time.Duration) ReplayCache {
	return &memoryReplayCache{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (c *memoryReplayCache) Remember(_ context.Context, token string, ttl time.Duration) (bool, error) {
	if err := c.cache.Add(token, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *memoryReplayCache) Forget(_ context.Context, token string) error {
	c.cache.Delete(token)
	return nil
}

type redisReplayCache struct {
	client redis.UniversalClient
}

func NewRedisReplayCache(client redis.UniversalClient) ReplayCache {
	return &redisReplayCache{client: client}
}

func (c *redisReplayCache) Remember(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	fresh, err := c.client.SetNX(ctx, replayKey(token), 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "recording webhook token")
	}
	return fresh, nil
}

func (c *redisReplayCache) Forget(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, replayKey(token)).Err(); err != nil {
		return errors.Wrap(err, "forgetting webhook token")
	}
	return nil
}

func replayKey(token string) string {
	return "domails:webhook-token:" + token
}
