package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
)

// EnqueueRequest is a single operation submitted by a device.
type EnqueueRequest struct {
	ActorID        string          `json:"actor_id"`
	OperationType  OperationType   `json:"operation_type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// EnqueueResult tells the device which operation holds its submission.
type EnqueueResult struct {
	OperationID uuid.UUID `json:"operation_id"`
	Status      Status    `json:"status"`
	Duplicate   bool      `json:"duplicate"`
}

// BatchItemResult is the outcome of one item of a batch enqueue.
// Exactly one of Result and Err is set.
type BatchItemResult struct {
	IdempotencyKey string
	Result         *EnqueueResult
	Err            error
}

// Service is the entry point for devices and operators: enqueue, status
// queries and admin actions.
type Service struct {
	store    Store
	registry *Registry
	strict   bool
	events   EventPublisher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new queue service
func NewService(store Store, registry *Registry, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := &serviceOptions{
		events: noopPublisher{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Service{
		store:    store,
		registry: registry,
		strict:   options.strictPayload,
		events:   options.events,
		metrics:  options.metrics,
		logger:   options.logger.With(logger.Component("syncqueue.service")),
		now:      options.now,
	}, nil
}

// Enqueue registers an operation, or returns the one already holding the
// actor's idempotency key with Duplicate set.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	if req.ActorID == "" {
		return EnqueueResult{}, ErrActorIDRequired
	}
	if req.IdempotencyKey == "" {
		return EnqueueResult{}, ErrIdempotencyKeyRequired
	}
	policy, err := s.registry.Policy(req.OperationType)
	if err != nil {
		return EnqueueResult{}, err
	}

	now := s.now()
	op := &Operation{
		ID:             uuid.New(),
		ActorID:        req.ActorID,
		Type:           req.OperationType,
		Payload:        req.Payload,
		PayloadHash:    HashPayload(req.Payload),
		IdempotencyKey: req.IdempotencyKey,
		Ordered:        policy.Ordered,
		Status:         StatusPending,
		MaxRetries:     policy.MaxRetries,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	stored, isNew, err := s.store.Register(ctx, op)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("register operation: %w", err)
	}

	if !isNew {
		if s.strict && stored.PayloadHash != op.PayloadHash {
			s.metrics.incConflict(req.OperationType)
			return EnqueueResult{}, &ConflictError{
				ActorID:        req.ActorID,
				IdempotencyKey: req.IdempotencyKey,
				OperationID:    stored.ID,
			}
		}

		s.metrics.incDuplicate(req.OperationType)
		s.logger.DebugContext(ctx, "duplicate submission",
			logger.OperationID(stored.ID),
			logger.ActorID(stored.ActorID),
			logger.IdempotencyKey(stored.IdempotencyKey),
			logger.Status(stored.Status))

		return EnqueueResult{OperationID: stored.ID, Status: stored.Status, Duplicate: true}, nil
	}

	s.metrics.incEnqueued(stored.Type)
	s.events.Publish(ctx, newEvent(EventEnqueued, stored, now))
	s.logger.InfoContext(ctx, "operation enqueued",
		logger.OperationID(stored.ID),
		logger.ActorID(stored.ActorID),
		logger.OperationType(stored.Type))

	return EnqueueResult{OperationID: stored.ID, Status: stored.Status}, nil
}

// EnqueueBatch enqueues the items in order, so that ordered operations of one
// actor keep the order the device recorded them in. A failing item does not
// stop the rest of the batch.
func (s *Service) EnqueueBatch(ctx context.Context, reqs []EnqueueRequest) ([]BatchItemResult, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}

	results := make([]BatchItemResult, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		item := BatchItemResult{IdempotencyKey: req.IdempotencyKey}
		res, err := s.Enqueue(ctx, req)
		if err != nil {
			item.Err = err
		} else {
			item.Result = &res
		}
		results = append(results, item)
	}
	return results, nil
}

// GetStatus returns the current status of an operation.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (StatusInfo, error) {
	op, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusInfo{}, err
	}
	return op.Info(), nil
}

// Cancel moves a pending operation to cancelled. Operations already picked up
// by a worker run to completion and cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (StatusInfo, error) {
	op, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusInfo{}, err
	}
	if op.Status != StatusPending {
		return StatusInfo{}, fmt.Errorf("%w: operation is %s", ErrNotCancellable, op.Status)
	}

	now := s.now()
	updated, err := s.store.Transition(ctx, id, StatusPending, StatusCancelled, Mutation{}, now)
	if err != nil {
		if IsStaleState(err) {
			return StatusInfo{}, errors.Join(ErrNotCancellable, err)
		}
		return StatusInfo{}, err
	}

	s.events.Publish(ctx, newEvent(EventCancelled, updated, now))
	s.logger.InfoContext(ctx, "operation cancelled",
		logger.OperationID(updated.ID),
		logger.ActorID(updated.ActorID))

	return updated.Info(), nil
}

// Requeue returns a failed or cancelled operation to pending with a fresh
// retry budget. It is eligible immediately.
func (s *Service) Requeue(ctx context.Context, id uuid.UUID) (StatusInfo, error) {
	op, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusInfo{}, err
	}
	if op.Status != StatusFailed && op.Status != StatusCancelled {
		return StatusInfo{}, fmt.Errorf("%w: operation is %s", ErrNotRequeueable, op.Status)
	}

	now := s.now()
	zero := 0
	updated, err := s.store.Transition(ctx, id, op.Status, StatusPending, Mutation{
		RetryCount:    &zero,
		ClearError:    true,
		NextAttemptAt: &now,
	}, now)
	if err != nil {
		if IsStaleState(err) {
			return StatusInfo{}, errors.Join(ErrNotRequeueable, err)
		}
		return StatusInfo{}, err
	}

	s.events.Publish(ctx, newEvent(EventRequeued, updated, now))
	s.logger.InfoContext(ctx, "operation requeued",
		logger.OperationID(updated.ID),
		logger.ActorID(updated.ActorID),
		slog.String("previous_status", string(op.Status)))

	return updated.Info(), nil
}

// ListFailed returns failed operations for operator review.
func (s *Service) ListFailed(ctx context.Context, filter FailedFilter) ([]*Operation, error) {
	return s.store.ListFailed(ctx, filter)
}

// ListEligible returns the pending backlog that workers may pick up now.
func (s *Service) ListEligible(ctx context.Context, limit int) ([]*Operation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.SelectEligible(ctx, s.now(), limit)
}

// Registry returns the dispatch registry the service validates against.
func (s *Service) Registry() *Registry {
	return s.registry
}
