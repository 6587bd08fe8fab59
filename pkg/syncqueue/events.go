package syncqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventEnqueued       EventKind = "operation.enqueued"
	EventStarted        EventKind = "operation.started"
	EventCompleted      EventKind = "operation.completed"
	EventRetryScheduled EventKind = "operation.retry_scheduled"
	EventFailed         EventKind = "operation.failed"
	EventCancelled      EventKind = "operation.cancelled"
	EventRequeued       EventKind = "operation.requeued"
	EventRecovered      EventKind = "operation.recovered"
)

// Event is emitted after every lifecycle change of an operation.
type Event struct {
	Kind          EventKind     `json:"kind"`
	OperationID   uuid.UUID     `json:"operation_id"`
	ActorID       string        `json:"actor_id"`
	OperationType OperationType `json:"operation_type"`
	Status        Status        `json:"status"`
	RetryCount    int           `json:"retry_count"`
	Reason        string        `json:"reason,omitempty"`
	NextAttemptAt *time.Time    `json:"next_attempt_at,omitempty"`
	At            time.Time     `json:"at"`
}

func newEvent(kind EventKind, op *Operation, at time.Time) Event {
	ev := Event{
		Kind:          kind,
		OperationID:   op.ID,
		ActorID:       op.ActorID,
		OperationType: op.Type,
		Status:        op.Status,
		RetryCount:    op.RetryCount,
		At:            at,
	}
	if op.LastError != nil {
		ev.Reason = *op.LastError
	}
	if op.Status == StatusPending && op.NextAttemptAt.After(at) {
		next := op.NextAttemptAt
		ev.NextAttemptAt = &next
	}
	return ev
}

// EventPublisher receives lifecycle events. Publish must not block.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) {}

// EventBus fans events out to in-process subscribers. Slow subscribers are
// dropped rather than blocking the publisher. All methods are safe for
// concurrent use.
type EventBus struct {
	subscribers map[*Subscription]struct{}
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// NewEventBus creates a bus with the given per-subscriber buffer (minimum 1).
func NewEventBus(bufferSize int) *EventBus {
	return &EventBus{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber for the events of actorID, or of every
// actor when actorID is empty. The subscription ends when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, actorID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ch:      make(chan Event, b.bufferSize),
		quit:    make(chan struct{}),
		actorID: actorID,
	}
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			select {
			case <-ctx.Done():
			case <-sub.quit:
			}
			b.unsubscribe(sub)
		}()
	}

	return sub
}

// Publish implements EventPublisher.
func (b *EventBus) Publish(_ context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subscribers {
		if sub.actorID != "" && sub.actorID != ev.ActorID {
			continue
		}
		if !sub.send(ev) {
			go b.unsubscribe(sub)
		}
	}
}

// Close closes every subscription. Safe to call more than once.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subscribers {
		_ = sub.Close()
	}
	clear(b.subscribers)
	b.mu.Unlock()

	b.cleanupWg.Wait()
	return nil
}

func (b *EventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	_ = sub.Close()
}

// Subscription delivers events until it is closed.
type Subscription struct {
	ch      chan Event
	actorID string
	closed  bool
	quit    chan struct{}
	mu      sync.RWMutex
}

// Events returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close ends the subscription. Idempotent.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
		close(s.quit)
	}
	return nil
}

func (s *Subscription) send(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}
