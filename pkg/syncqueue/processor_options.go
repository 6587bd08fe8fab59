package syncqueue

import (
	"log/slog"
	"time"
)

// ProcessorOption is a functional option for configuring a processor
type ProcessorOption func(*processorOptions)

type processorOptions struct {
	workers        int
	pollInterval   time.Duration
	batchSize      int
	handlerTimeout time.Duration
	backoff        Backoff
	locker         ActorLocker
	events         EventPublisher
	metrics        *Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// WithWorkers sets how many operations may run concurrently
func WithWorkers(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPollInterval sets how often the processor looks for eligible actors
func WithPollInterval(d time.Duration) ProcessorOption {
	return func(o *processorOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithBatchSize caps the number of actors fetched per poll
func WithBatchSize(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithHandlerTimeout bounds a single handler attempt
func WithHandlerTimeout(d time.Duration) ProcessorOption {
	return func(o *processorOptions) {
		if d > 0 {
			o.handlerTimeout = d
		}
	}
}

// WithBackoff sets the retry schedule
func WithBackoff(b Backoff) ProcessorOption {
	return func(o *processorOptions) {
		o.backoff = b
	}
}

// WithActorLocker sets how actors are claimed across workers
func WithActorLocker(l ActorLocker) ProcessorOption {
	return func(o *processorOptions) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithProcessorEvents sets where lifecycle events are published
func WithProcessorEvents(p EventPublisher) ProcessorOption {
	return func(o *processorOptions) {
		if p != nil {
			o.events = p
		}
	}
}

// WithProcessorMetrics sets the Prometheus collectors
func WithProcessorMetrics(m *Metrics) ProcessorOption {
	return func(o *processorOptions) {
		o.metrics = m
	}
}

// WithProcessorLogger sets the logger for the processor
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(o *processorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProcessorClock overrides time.Now
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(o *processorOptions) {
		if now != nil {
			o.now = now
		}
	}
}
