package ports

import (
	"context"
	"time"
)

// UnlockFunc gives a distributed lock back.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker lets replicas take turns on the same conversation.
type DistributedLocker interface {
	// Lock blocks until key is held or ctx ends. The lock lapses after ttl
	// if the returned UnlockFunc is never called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
