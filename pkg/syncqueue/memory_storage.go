package syncqueue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ledgerKey struct {
	actorID string
	key     string
}

// MemoryStorage implements Store in memory for tests and local development.
// Every method is atomic with respect to the others.
type MemoryStorage struct {
	mu      sync.RWMutex
	ops     map[uuid.UUID]*Operation
	ledger  map[ledgerKey]uuid.UUID
	byActor map[string][]uuid.UUID
	seq     int64
}

var _ Store = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		ops:     make(map[uuid.UUID]*Operation),
		ledger:  make(map[ledgerKey]uuid.UUID),
		byActor: make(map[string][]uuid.UUID),
	}
}

// Register implements LedgerRepository.
func (ms *MemoryStorage) Register(_ context.Context, op *Operation) (*Operation, bool, error) {
	if op.ActorID == "" {
		return nil, false, ErrActorIDRequired
	}
	if op.IdempotencyKey == "" {
		return nil, false, ErrIdempotencyKeyRequired
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	k := ledgerKey{actorID: op.ActorID, key: op.IdempotencyKey}
	if id, exists := ms.ledger[k]; exists {
		return ms.ops[id].clone(), false, nil
	}

	stored := op.clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	ms.seq++
	stored.Seq = ms.seq

	ms.ops[stored.ID] = stored
	ms.ledger[k] = stored.ID
	ms.byActor[stored.ActorID] = append(ms.byActor[stored.ActorID], stored.ID)

	return stored.clone(), true, nil
}

// Get implements LedgerRepository.
func (ms *MemoryStorage) Get(_ context.Context, id uuid.UUID) (*Operation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	op, exists := ms.ops[id]
	if !exists {
		return nil, ErrOperationNotFound
	}
	return op.clone(), nil
}

// EligibleActors implements ProcessorRepository.
func (ms *MemoryStorage) EligibleActors(_ context.Context, now time.Time, limit int) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	heads := make([]*Operation, 0)
	for actorID := range ms.byActor {
		if next := NextForActor(ms.actorOps(actorID), now); next != nil {
			heads = append(heads, next)
		}
	}
	sortOldestFirst(heads)

	actors := make([]string, 0, len(heads))
	for _, op := range heads {
		if limit > 0 && len(actors) >= limit {
			break
		}
		actors = append(actors, op.ActorID)
	}
	return actors, nil
}

// AcquireForActor implements ProcessorRepository.
func (ms *MemoryStorage) AcquireForActor(_ context.Context, actorID string, workerID uuid.UUID, now time.Time) (*Operation, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	next := NextForActor(ms.actorOps(actorID), now)
	if next == nil {
		return nil, ErrNoOperationToAcquire
	}

	id := workerID
	next.Status = StatusProcessing
	next.LockedBy = &id
	next.UpdatedAt = now

	return next.clone(), nil
}

// Transition implements ProcessorRepository.
func (ms *MemoryStorage) Transition(_ context.Context, id uuid.UUID, from, to Status, m Mutation, at time.Time) (*Operation, error) {
	if err := ValidateTransition(from, to); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	op, exists := ms.ops[id]
	if !exists {
		return nil, ErrOperationNotFound
	}
	if op.Status != from || !m.Matches(op) {
		return nil, &StaleStateError{ID: id, Expected: from, Actual: op.Status}
	}

	m.Apply(op, to, at)
	return op.clone(), nil
}

// ListAbandoned implements ProcessorRepository.
func (ms *MemoryStorage) ListAbandoned(_ context.Context, olderThan time.Time, limit int) ([]*Operation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]*Operation, 0)
	for _, op := range ms.ops {
		if op.Status == StatusProcessing && op.UpdatedAt.Before(olderThan) {
			result = append(result, op.clone())
		}
	}
	slices.SortFunc(result, func(a, b *Operation) int { return a.UpdatedAt.Compare(b.UpdatedAt) })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SelectEligible implements AdminRepository.
func (ms *MemoryStorage) SelectEligible(_ context.Context, now time.Time, limit int) ([]*Operation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	busy := make(map[string]bool)
	for _, op := range ms.ops {
		if op.Status == StatusProcessing {
			busy[op.ActorID] = true
		}
	}

	result := make([]*Operation, 0)
	for _, op := range ms.ops {
		if op.Eligible(now) && !busy[op.ActorID] {
			result = append(result, op.clone())
		}
	}
	sortOldestFirst(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListFailed implements AdminRepository.
func (ms *MemoryStorage) ListFailed(_ context.Context, filter FailedFilter) ([]*Operation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]*Operation, 0)
	for _, op := range ms.ops {
		if filter.Match(op) {
			result = append(result, op.clone())
		}
	}
	slices.SortFunc(result, func(a, b *Operation) int { return b.UpdatedAt.Compare(a.UpdatedAt) })

	if limit := filter.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// actorOps returns the stored (not cloned) non-terminal operations of an actor.
// Callers must hold the mutex.
func (ms *MemoryStorage) actorOps(actorID string) []*Operation {
	ids := ms.byActor[actorID]
	ops := make([]*Operation, 0, len(ids))
	for _, id := range ids {
		if op := ms.ops[id]; !op.Status.Terminal() {
			ops = append(ops, op)
		}
	}
	return ops
}

func sortOldestFirst(ops []*Operation) {
	slices.SortFunc(ops, func(a, b *Operation) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
}
