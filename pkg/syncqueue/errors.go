package syncqueue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrStoreNil is returned when a nil repository is provided
	ErrStoreNil = errors.New("syncqueue: store cannot be nil")

	// ErrRegistryNil is returned when a nil registry is provided
	ErrRegistryNil = errors.New("syncqueue: registry cannot be nil")

	// ErrActorIDRequired is returned when an operation has no actor
	ErrActorIDRequired = errors.New("syncqueue: actor id is required")

	// ErrIdempotencyKeyRequired is returned when the client did not supply a key
	ErrIdempotencyKeyRequired = errors.New("syncqueue: idempotency key is required")

	// ErrOperationTypeRequired is returned when registering an empty type
	ErrOperationTypeRequired = errors.New("syncqueue: operation type is required")

	// ErrUnknownOperationType is returned when enqueueing a type with no registered handler
	ErrUnknownOperationType = errors.New("syncqueue: unknown operation type")

	// ErrHandlerNil is returned when registering a nil handler
	ErrHandlerNil = errors.New("syncqueue: handler cannot be nil")

	// ErrHandlerAlreadyRegistered is returned on duplicate registration
	ErrHandlerAlreadyRegistered = errors.New("syncqueue: handler already registered for operation type")

	// ErrNoHandlers is returned when a processor starts with an empty registry
	ErrNoHandlers = errors.New("syncqueue: no handlers registered")

	// ErrOperationNotFound is returned when no operation has the requested id
	ErrOperationNotFound = errors.New("syncqueue: operation not found")

	// ErrNotCancellable is returned when cancelling an operation that is not pending
	ErrNotCancellable = errors.New("syncqueue: only pending operations can be cancelled")

	// ErrNotRequeueable is returned when requeueing an operation that is neither failed nor cancelled
	ErrNotRequeueable = errors.New("syncqueue: only failed or cancelled operations can be requeued")

	// ErrInvalidTransition is returned for a status change the lifecycle does not allow
	ErrInvalidTransition = errors.New("syncqueue: invalid status transition")

	// ErrNoOperationToAcquire is returned when an actor has nothing eligible to run
	ErrNoOperationToAcquire = errors.New("syncqueue: no operation to acquire")

	// ErrActorBusy is returned by an ActorLocker when another worker holds the actor
	ErrActorBusy = errors.New("syncqueue: actor is being processed by another worker")

	// ErrEmptyBatch is returned when a batch enqueue carries no items
	ErrEmptyBatch = errors.New("syncqueue: batch is empty")

	// ErrAlreadyStarted is returned when starting a running component
	ErrAlreadyStarted = errors.New("syncqueue: already started")

	// ErrNotStarted is returned when stopping a component that is not running
	ErrNotStarted = errors.New("syncqueue: not started")

	// The sentinels below carry no package prefix: their text is stored in
	// last_error and shown to clients and operators.

	// ErrValidationRejected marks a handler error the business module rejected; never retried
	ErrValidationRejected = errors.New("validation rejected")

	// ErrTransientBackendUnavailable marks a retryable backend outage
	ErrTransientBackendUnavailable = errors.New("backend temporarily unavailable")

	// ErrHandlerTimeout is recorded when a handler exceeds its time budget
	ErrHandlerTimeout = errors.New("handler timed out")

	// ErrRetryBudgetExhausted is recorded when a transient failure arrives with no retries left
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrAbandonedOperation is recorded when the liveness sweep reclaims an operation
	ErrAbandonedOperation = errors.New("operation abandoned by worker")
)

// StaleStateError is returned when a conditional transition finds the
// operation in a different state than the caller expected.
type StaleStateError struct {
	ID       uuid.UUID
	Expected Status
	Actual   Status
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("syncqueue: operation %s is %s, expected %s", e.ID, e.Actual, e.Expected)
}

// IsStaleState reports whether err is a StaleStateError.
func IsStaleState(err error) bool {
	var target *StaleStateError
	return errors.As(err, &target)
}

// ConflictError is returned in strict mode when a known idempotency key is
// resubmitted with a different payload.
type ConflictError struct {
	ActorID        string
	IdempotencyKey string
	OperationID    uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("syncqueue: idempotency key %q of actor %q already used for operation %s with a different payload",
		e.IdempotencyKey, e.ActorID, e.OperationID)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
