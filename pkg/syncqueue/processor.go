package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
)

// Processor is the worker pool that applies queued operations.
// At most one operation per actor is in flight; different actors run
// concurrently up to the configured number of workers.
type Processor struct {
	store    ProcessorRepository
	registry *Registry
	retry    *RetryController
	locker   ActorLocker
	events   EventPublisher
	metrics  *Metrics
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	pollInterval   time.Duration
	batchSize      int
	handlerTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewProcessor creates a new operation processor
func NewProcessor(store ProcessorRepository, registry *Registry, opts ...ProcessorOption) (*Processor, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := &processorOptions{
		workers:        4,
		pollInterval:   2 * time.Second,
		batchSize:      50,
		handlerTimeout: 30 * time.Second,
		backoff:        DefaultBackoff(),
		events:         noopPublisher{},
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.locker == nil {
		options.locker = NewLocalActorLocker()
	}

	workerID := uuid.New()
	return &Processor{
		store:          store,
		registry:       registry,
		retry:          NewRetryController(options.backoff),
		locker:         options.locker,
		events:         options.events,
		metrics:        options.metrics,
		workerID:       workerID,
		sem:            make(chan struct{}, options.workers),
		pollInterval:   options.pollInterval,
		batchSize:      options.batchSize,
		handlerTimeout: options.handlerTimeout,
		logger: options.logger.With(
			logger.Component("syncqueue.processor"),
			logger.WorkerID(workerID.String()),
		),
		now: options.now,
	}, nil
}

// Start begins polling for eligible actors in the background
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	if p.registry.Len() == 0 {
		p.mu.Unlock()
		return ErrNoHandlers
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.stopping.Store(false)
	go p.run()

	p.logger.Info("processor started",
		slog.Int("workers", cap(p.sem)),
		slog.Duration("poll_interval", p.pollInterval),
		slog.Any("operation_types", p.registry.Types()))

	return nil
}

// Stop cancels polling and waits for in-flight operations to be recorded
func (p *Processor) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.stopMu.Lock()
	p.stopping.Store(true)
	p.stopMu.Unlock()

	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()

	p.logger.Info("processor stopping, waiting for in-flight operations")
	p.wg.Wait()
	p.logger.Info("processor stopped")

	return nil
}

// Run starts the processor and returns a function suitable for errgroup
func (p *Processor) Run(ctx context.Context) func() error {
	return func() error {
		if err := p.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return p.Stop()
	}
}

// ProcessOnce runs a single synchronous pass: every currently eligible actor
// gets at most one operation executed. It returns how many operations ran.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	actors, err := p.store.EligibleActors(ctx, p.now(), p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch eligible actors: %w", err)
	}

	var (
		wg        sync.WaitGroup
		errMu     sync.Mutex
		errs      []error
		processed atomic.Int64
	)

	for _, actorID := range actors {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return int(processed.Load()), ctx.Err()
		}

		wg.Add(1)
		go func(actorID string) {
			defer wg.Done()
			defer func() { <-p.sem }()

			ran, err := p.processActor(ctx, actorID)
			if ran {
				processed.Add(1)
			}
			if err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(actorID)
	}

	wg.Wait()
	return int(processed.Load()), errors.Join(errs...)
}

// WorkerInfo returns information about the processor
func (p *Processor) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return p.workerID.String(), hostname, os.Getpid()
}

func (p *Processor) run() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll(p.ctx)
		}
	}
}

// poll hands eligible actors to free worker slots without blocking.
func (p *Processor) poll(ctx context.Context) {
	actors, err := p.store.EligibleActors(ctx, p.now(), p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "failed to fetch eligible actors", logger.Error(err))
		}
		return
	}

	for _, actorID := range actors {
		select {
		case p.sem <- struct{}{}:
		default:
			p.logger.DebugContext(ctx, "all worker slots busy, deferring remaining actors",
				slog.Int("pending_actors", len(actors)))
			return
		}

		// Don't add to the WaitGroup once Stop() has started waiting on it
		p.stopMu.Lock()
		if p.stopping.Load() {
			p.stopMu.Unlock()
			<-p.sem
			return
		}
		p.wg.Add(1)
		p.stopMu.Unlock()

		go func(actorID string) {
			defer p.wg.Done()
			defer func() { <-p.sem }()

			if _, err := p.processActor(ctx, actorID); err != nil {
				p.logger.ErrorContext(ctx, "failed to process actor",
					logger.ActorID(actorID),
					logger.Error(err))
			}
		}(actorID)
	}
}

// processActor claims the actor, acquires its next operation and executes it.
// It reports whether an operation was executed.
func (p *Processor) processActor(ctx context.Context, actorID string) (bool, error) {
	lock, err := p.locker.TryLock(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrActorBusy) {
			return false, nil
		}
		return false, fmt.Errorf("claim actor %s: %w", actorID, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			p.logger.WarnContext(ctx, "failed to release actor claim",
				logger.ActorID(actorID),
				logger.Error(err))
		}
	}()

	op, err := p.store.AcquireForActor(ctx, actorID, p.workerID, p.now())
	if err != nil {
		if errors.Is(err, ErrNoOperationToAcquire) {
			return false, nil
		}
		return false, fmt.Errorf("acquire operation for actor %s: %w", actorID, err)
	}

	return true, p.execute(ctx, op)
}

func (p *Processor) execute(ctx context.Context, op *Operation) error {
	startedAt := p.now()
	p.metrics.observeLag(op, startedAt)
	p.events.Publish(ctx, newEvent(EventStarted, op, startedAt))
	p.logger.DebugContext(ctx, "operation acquired",
		logger.OperationID(op.ID),
		logger.ActorID(op.ActorID),
		logger.OperationType(op.Type),
		logger.RetryCount(op.RetryCount))

	began := time.Now()
	res := p.invoke(op)
	duration := time.Since(began)

	now := p.now()
	decision := p.retry.Decide(op, res, now)
	m := decision.Mutation()
	workerID := p.workerID
	m.ExpectLockedBy = &workerID

	// The outcome is recorded even when the processor is shutting down.
	updated, err := p.store.Transition(context.WithoutCancel(ctx), op.ID, StatusProcessing, decision.To, m, now)
	if err != nil {
		if IsStaleState(err) {
			p.logger.WarnContext(ctx, "operation was reclaimed before its outcome was recorded",
				logger.OperationID(op.ID),
				logger.ActorID(op.ActorID),
				slog.String("outcome", res.Outcome.String()),
				logger.Error(err))
			return nil
		}
		return fmt.Errorf("record outcome of operation %s: %w", op.ID, err)
	}

	p.metrics.observeAttempt(op, res, decision.To, duration)
	p.report(ctx, updated, res, decision, duration)
	return nil
}

// invoke runs the handler with a bounded time budget. Panics and timeouts are
// reported as transient failures.
func (p *Processor) invoke(op *Operation) Result {
	handler, ok := p.registry.Lookup(op.Type)
	if !ok {
		return PermanentFailure(fmt.Sprintf("no handler registered for operation type %q", op.Type))
	}

	// Not tied to the processor lifecycle so that graceful shutdown lets
	// in-flight attempts finish.
	ctx, cancel := context.WithTimeout(WithOperation(context.Background(), op), p.handlerTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("handler panicked",
					logger.OperationID(op.ID),
					logger.OperationType(op.Type),
					slog.Any("panic", r))
				done <- TransientFailure(fmt.Sprintf("panic in handler: %v", r))
			}
		}()
		done <- handler.Handle(ctx, op.Payload)
	}()

	select {
	case res := <-done:
		switch res.Outcome {
		case OutcomeSuccess, OutcomeTransient, OutcomePermanent:
			return res
		}
		return TransientFailure(fmt.Sprintf("handler returned unknown outcome %d", res.Outcome))
	case <-ctx.Done():
		return TransientFailure(ErrHandlerTimeout.Error())
	}
}

func (p *Processor) report(ctx context.Context, op *Operation, res Result, d Decision, duration time.Duration) {
	attrs := []any{
		logger.OperationID(op.ID),
		logger.ActorID(op.ActorID),
		logger.OperationType(op.Type),
		logger.RetryCount(op.RetryCount),
		logger.MaxRetries(op.MaxRetries),
		logger.Duration(duration),
	}
	at := op.UpdatedAt

	switch d.To {
	case StatusCompleted:
		p.events.Publish(ctx, newEvent(EventCompleted, op, at))
		p.logger.InfoContext(ctx, "operation completed", attrs...)
	case StatusPending:
		p.events.Publish(ctx, newEvent(EventRetryScheduled, op, at))
		p.logger.WarnContext(ctx, "operation failed, retry scheduled",
			append(attrs, slog.String("reason", res.Reason), logger.NextAttemptAt(op.NextAttemptAt))...)
	case StatusFailed:
		p.events.Publish(ctx, newEvent(EventFailed, op, at))
		msg := "operation failed permanently"
		if d.Exhausted {
			msg = "operation failed, retry budget exhausted"
		}
		p.logger.ErrorContext(ctx, msg, append(attrs, slog.String("reason", res.Reason))...)
	}
}
