// Package redislocker claims actors across processes with Redis locks, so
// that several worker processes sharing one store never run two operations of
// the same actor at once.
package redislocker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

const (
	DefaultTTL    = 10 * time.Minute
	DefaultPrefix = "syncqueue:actor:"
)

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long a claim survives a crashed worker. It must exceed the
// handler timeout so that a live claim never expires mid attempt.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix of the lock keys.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// Locker implements syncqueue.ActorLocker on top of bsm/redislock.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
}

var _ syncqueue.ActorLocker = (*Locker)(nil)

// New creates a locker. client is usually a *redis.Client.
func New(client redislock.RedisClient, opts ...Option) *Locker {
	l := &Locker{
		client: redislock.New(client),
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock claims actorID without waiting. It returns syncqueue.ErrActorBusy
// when another worker holds the claim.
func (l *Locker) TryLock(ctx context.Context, actorID string) (syncqueue.ActorLock, error) {
	lock, err := l.client.Obtain(ctx, l.Key(actorID), l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, syncqueue.ErrActorBusy
		}
		return nil, fmt.Errorf("obtain redis lock: %w", err)
	}
	return &actorLock{lock: lock}, nil
}

// Key returns the Redis key guarding actorID.
func (l *Locker) Key(actorID string) string {
	return l.prefix + actorID
}

type actorLock struct {
	lock *redislock.Lock
}

// Release drops the claim. A claim that already expired is not an error.
func (a *actorLock) Release(ctx context.Context) error {
	if err := a.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("release redis lock: %w", err)
	}
	return nil
}
