package syncqueue

import (
	"log/slog"
	"time"
)

// ServiceOption is a functional option for configuring a Service
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	strictPayload bool
	events        EventPublisher
	metrics       *Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// WithStrictPayloadMatch makes a reused idempotency key with a different
// payload fail with ConflictError instead of returning the original operation.
func WithStrictPayloadMatch(strict bool) ServiceOption {
	return func(o *serviceOptions) {
		o.strictPayload = strict
	}
}

// WithServiceEvents sets where lifecycle events are published
func WithServiceEvents(p EventPublisher) ServiceOption {
	return func(o *serviceOptions) {
		if p != nil {
			o.events = p
		}
	}
}

// WithServiceMetrics sets the Prometheus collectors
func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithServiceLogger sets the logger for the service
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithServiceClock overrides time.Now
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}
