package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
)

// SweeperOption is a functional option for configuring a sweeper
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often the sweep runs
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLivenessTimeout sets how long an operation may stay in processing
// without an update before it is considered abandoned
func WithLivenessTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.livenessTimeout = d
		}
	}
}

// WithSweepBatchSize caps the operations reclaimed per sweep
func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSweeperEvents sets where recovery events are published
func WithSweeperEvents(p EventPublisher) SweeperOption {
	return func(s *Sweeper) {
		if p != nil {
			s.events = p
		}
	}
}

// WithSweeperMetrics sets the Prometheus collectors
func WithSweeperMetrics(m *Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithSweeperLogger sets the logger for the sweeper
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweeperClock overrides time.Now
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper recovers operations left in processing by workers that crashed or
// lost connectivity. A reclaimed operation goes back to pending and consumes
// one retry, or fails when its budget is spent.
type Sweeper struct {
	store           ProcessorRepository
	retry           *RetryController
	events          EventPublisher
	metrics         *Metrics
	logger          *slog.Logger
	interval        time.Duration
	livenessTimeout time.Duration
	batchSize       int
	now             func() time.Time
}

// NewSweeper creates a liveness sweeper
func NewSweeper(store ProcessorRepository, backoff Backoff, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	s := &Sweeper{
		store:           store,
		retry:           NewRetryController(backoff),
		events:          noopPublisher{},
		logger:          slog.Default(),
		interval:        time.Minute,
		livenessTimeout: 5 * time.Minute,
		batchSize:       100,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("syncqueue.sweeper"))

	return s, nil
}

// Sweep reclaims abandoned operations once and returns how many were reclaimed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	abandoned, err := s.store.ListAbandoned(ctx, now.Add(-s.livenessTimeout), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list abandoned operations: %w", err)
	}

	reclaimed := 0
	for _, op := range abandoned {
		d := s.retry.Reclaim(op, now)
		m := d.Mutation()
		// Guard against the owner finishing, or a new attempt starting,
		// between listing and reclaiming.
		lastSeen := op.UpdatedAt
		m.ExpectUpdatedAt = &lastSeen

		updated, err := s.store.Transition(ctx, op.ID, StatusProcessing, d.To, m, now)
		if err != nil {
			if IsStaleState(err) {
				continue
			}
			return reclaimed, fmt.Errorf("reclaim operation %s: %w", op.ID, err)
		}

		reclaimed++
		s.metrics.incReclaimed()
		s.events.Publish(ctx, newEvent(EventRecovered, updated, now))
		if !d.Retry() {
			s.events.Publish(ctx, newEvent(EventFailed, updated, now))
		}

		s.logger.WarnContext(ctx, "reclaimed abandoned operation",
			logger.OperationID(updated.ID),
			logger.ActorID(updated.ActorID),
			logger.OperationType(updated.Type),
			logger.Status(updated.Status),
			logger.RetryCount(updated.RetryCount),
			logger.Error(ErrAbandonedOperation),
			slog.Time("last_update", lastSeen))
	}

	return reclaimed, nil
}

// Run sweeps on every interval until ctx is cancelled. The returned function
// is suitable for errgroup.
func (s *Sweeper) Run(ctx context.Context) func() error {
	return func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sweeper started",
			slog.Duration("interval", s.interval),
			slog.Duration("liveness_timeout", s.livenessTimeout))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sweeper stopped")
				return nil
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.ErrorContext(ctx, "liveness sweep failed", logger.Error(err))
				}
			}
		}
	}
}
