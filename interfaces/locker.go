package interfaces

import (
	"context"
	"time"
)

// Locker is a best-effort advisory lock shared between replicas.
type Locker interface {
	// TryLock returns acquired=false without error when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}
