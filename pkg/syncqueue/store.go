package syncqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LedgerRepository persists operations keyed by (actor, idempotency key).
type LedgerRepository interface {
	// Register stores op unless the actor already used its idempotency key.
	// It returns the stored operation and whether it was newly created.
	// Registration and row creation happen in a single atomic step.
	Register(ctx context.Context, op *Operation) (*Operation, bool, error)

	// Get returns the operation or ErrOperationNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Operation, error)
}

// ProcessorRepository is what workers and the liveness sweep need.
type ProcessorRepository interface {
	// EligibleActors returns actors with eligible pending work and nothing in
	// processing, oldest work first.
	EligibleActors(ctx context.Context, now time.Time, limit int) ([]string, error)

	// AcquireForActor atomically moves the actor's next operation (see
	// NextForActor) to processing, or returns ErrNoOperationToAcquire.
	AcquireForActor(ctx context.Context, actorID string, workerID uuid.UUID, now time.Time) (*Operation, error)

	// Transition changes status from -> to if the stored status still equals
	// from and the mutation guards hold; otherwise it returns *StaleStateError.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, m Mutation, at time.Time) (*Operation, error)

	// ListAbandoned returns processing operations not updated since olderThan.
	ListAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]*Operation, error)
}

// AdminRepository backs operator queries.
type AdminRepository interface {
	// SelectEligible returns pending operations due at now, oldest first,
	// excluding actors that currently have an operation in processing.
	SelectEligible(ctx context.Context, now time.Time, limit int) ([]*Operation, error)

	// ListFailed returns failed operations matching the filter, most recent first.
	ListFailed(ctx context.Context, filter FailedFilter) ([]*Operation, error)
}

// Store is the full persistence contract of the queue.
type Store interface {
	LedgerRepository
	ProcessorRepository
	AdminRepository
}
