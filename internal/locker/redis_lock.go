package locker

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/domails/interfaces"
)

const keyPrefix = "domails:lock:"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type redisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker returns a Locker on SET NX PX. A lock is released only by the
// holder that set it; an expired lock may be taken over by anyone.
func NewRedisLocker(client redis.UniversalClient) interfaces.Locker {
	return &redisLocker{client: client}
}

// NewRedisClient parses a redis:// or rediss:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return redis.NewClient(opts), nil
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	owner, err := gonanoid.New()
	if err != nil {
		return nil, false, errors.Wrap(err, "generating lock owner")
	}

	fullKey := keyPrefix + key
	acquired, err := l.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "acquiring lock %s", key)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		// the caller's context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, owner).Err()
	}
	return release, true, nil
}
