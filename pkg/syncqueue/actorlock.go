package syncqueue

import (
	"context"
	"sync"
)

// ActorLock is a claim on an actor held by one worker.
type ActorLock interface {
	Release(ctx context.Context) error
}

// ActorLocker hands out actor claims so that two workers do not contend for
// the same actor. TryLock returns ErrActorBusy when the actor is already held.
// The store remains the authority on single execution; claims only cut down
// wasted acquire attempts.
type ActorLocker interface {
	TryLock(ctx context.Context, actorID string) (ActorLock, error)
}

// LocalActorLocker claims actors within a single process.
type LocalActorLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalActorLocker creates an in-process locker.
func NewLocalActorLocker() *LocalActorLocker {
	return &LocalActorLocker{held: make(map[string]struct{})}
}

// TryLock implements ActorLocker.
func (l *LocalActorLocker) TryLock(_ context.Context, actorID string) (ActorLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[actorID]; busy {
		return nil, ErrActorBusy
	}
	l.held[actorID] = struct{}{}
	return &localActorLock{locker: l, actorID: actorID}, nil
}

type localActorLock struct {
	locker   *LocalActorLocker
	actorID  string
	released sync.Once
}

func (l *localActorLock) Release(context.Context) error {
	l.released.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.actorID)
		l.locker.mu.Unlock()
	})
	return nil
}
