// Package redis provides a distributed turn lock backed by Redis, so several
// replicas never run two turns of one conversation at once.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/carebot/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockAcquire wraps every failure to take a turn lock.
var ErrLockAcquire = errors.New("turn lock not acquired")

// releaseIfOwner deletes the lock only while it still carries our token.
var releaseIfOwner = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendIfOwner pushes the expiry forward only while the lock carries our token.
var extendIfOwner = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a ports.DistributedLocker over SET NX with a per-holder token.
type Locker struct {
	client backend.UniversalClient
	prefix string
	poll   time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithPollInterval sets how often a busy lock is retried.
func WithPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) { l.poll = d }
}

// NewLocker builds a Locker whose keys are "<prefix>lock:<conversation>".
func NewLocker(client backend.UniversalClient, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: prefix,
		poll:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls until the conversation key is free or ctx ends. Only the
// returned UnlockFunc can release the lock it took. While held, the lock is
// renewed every ttl/3 so a slow turn does not outlive it; ttl only bounds how
// long a crashed holder blocks others.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	name := l.prefix + "lock:" + key
	token := uuid.NewString()

	retry := time.NewTicker(l.poll)
	defer retry.Stop()

	for {
		took, err := l.client.SetNX(ctx, name, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLockAcquire, key, err)
		}
		if took {
			stop := l.keepAlive(name, token, ttl)
			return func(ctx context.Context) error {
				stop()
				return releaseIfOwner.Run(ctx, l.client, []string{name}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockAcquire, key, ctx.Err())
		case <-retry.C:
		}
	}
}

// keepAlive renews the lock until stop is called or the lock is lost.
func (l *Locker) keepAlive(name, token string, ttl time.Duration) (stop func()) {
	every := ttl / 3
	if every <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick := time.NewTicker(every)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				held, err := extendIfOwner.Run(ctx, l.client, []string{name}, token, ttl.Milliseconds()).Int()
				if err == nil && held == 0 {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
