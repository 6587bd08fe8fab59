package syncapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/fieldsync/pkg/httpserver"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// DefaultMaxBatchSize caps the number of operations in one batch request.
const DefaultMaxBatchSize = 500

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request errors and event streams.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithEventBus enables the per-actor websocket event stream.
func WithEventBus(bus *syncqueue.EventBus) Option {
	return func(a *API) {
		a.bus = bus
	}
}

// WithMaxBatchSize caps batch requests. Values below 1 are ignored.
func WithMaxBatchSize(n int) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBatch = n
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		a.metrics = h
	}
}

// WithReadinessChecks sets the dependencies reported by /health/ready.
func WithReadinessChecks(timeout time.Duration, checks ...httpserver.Check) Option {
	return func(a *API) {
		a.readyTimeout = timeout
		a.readyChecks = append(a.readyChecks, checks...)
	}
}

// WithPingInterval sets how often idle event streams are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.pingInterval = d
		}
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// Without it the same-origin policy of the websocket package applies.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) {
		a.allowedOrigins = append(a.allowedOrigins, origins...)
	}
}
