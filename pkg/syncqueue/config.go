package syncqueue

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Config holds the tunables of the queue.
type Config struct {
	Workers          int            `env:"SYNCQUEUE_WORKERS" envDefault:"4"`
	PollInterval     time.Duration  `env:"SYNCQUEUE_POLL_INTERVAL" envDefault:"2s"`
	BatchSize        int            `env:"SYNCQUEUE_BATCH_SIZE" envDefault:"50"`
	HandlerTimeout   time.Duration  `env:"SYNCQUEUE_HANDLER_TIMEOUT" envDefault:"30s"`
	LivenessTimeout  time.Duration  `env:"SYNCQUEUE_LIVENESS_TIMEOUT" envDefault:"5m"`
	SweepInterval    time.Duration  `env:"SYNCQUEUE_SWEEP_INTERVAL" envDefault:"1m"`
	MaxRetries       int            `env:"SYNCQUEUE_MAX_RETRIES" envDefault:"3"`
	MaxRetriesByType map[string]int `env:"SYNCQUEUE_MAX_RETRIES_BY_TYPE" envDefault:"payment:2"`
	BackoffBase      time.Duration  `env:"SYNCQUEUE_BACKOFF_BASE" envDefault:"5s"`
	BackoffCap       time.Duration  `env:"SYNCQUEUE_BACKOFF_CAP" envDefault:"10m"`
	BackoffJitter    float64        `env:"SYNCQUEUE_BACKOFF_JITTER" envDefault:"0.2"`
	StrictPayload    bool           `env:"SYNCQUEUE_STRICT_PAYLOAD_MATCH" envDefault:"false"`
	EventBuffer      int            `env:"SYNCQUEUE_EVENT_BUFFER" envDefault:"64"`
	UnorderedTypes   []string       `env:"SYNCQUEUE_UNORDERED_TYPES"`
}

// DefaultConfig mirrors the envDefault values.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		PollInterval:     2 * time.Second,
		BatchSize:        50,
		HandlerTimeout:   30 * time.Second,
		LivenessTimeout:  5 * time.Minute,
		SweepInterval:    time.Minute,
		MaxRetries:       3,
		MaxRetriesByType: map[string]int{string(TypePayment): 2},
		BackoffBase:      5 * time.Second,
		BackoffCap:       10 * time.Minute,
		BackoffJitter:    0.2,
		EventBuffer:      64,
	}
}

// Validate rejects settings that would break the liveness guarantee.
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, errors.New("SYNCQUEUE_WORKERS must be positive"))
	}
	if c.HandlerTimeout <= 0 {
		errs = append(errs, errors.New("SYNCQUEUE_HANDLER_TIMEOUT must be positive"))
	}
	// A live handler must be timed out before the sweep may consider it abandoned.
	if c.LivenessTimeout <= c.HandlerTimeout {
		errs = append(errs, fmt.Errorf("SYNCQUEUE_LIVENESS_TIMEOUT (%s) must exceed SYNCQUEUE_HANDLER_TIMEOUT (%s)",
			c.LivenessTimeout, c.HandlerTimeout))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("SYNCQUEUE_MAX_RETRIES cannot be negative"))
	}
	for t, n := range c.MaxRetriesByType {
		if n < 0 {
			errs = append(errs, fmt.Errorf("max retries for %q cannot be negative", t))
		}
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		errs = append(errs, errors.New("SYNCQUEUE_BACKOFF_JITTER must be in [0,1)"))
	}
	return errors.Join(errs...)
}

// MaxRetriesFor returns the retry budget of an operation type.
func (c Config) MaxRetriesFor(t OperationType) int {
	if n, ok := c.MaxRetriesByType[string(t)]; ok {
		return n
	}
	return c.MaxRetries
}

// RegisterOptions returns the registry policy of t: its retry budget and
// whether it is exempt from per-actor ordering.
func (c Config) RegisterOptions(t OperationType) []RegisterOption {
	opts := []RegisterOption{WithMaxRetries(c.MaxRetriesFor(t))}
	if slices.Contains(c.UnorderedTypes, string(t)) {
		opts = append(opts, WithUnordered())
	}
	return opts
}

// Backoff returns the configured backoff schedule.
func (c Config) Backoff() Backoff {
	return Backoff{
		Base:         c.BackoffBase,
		Cap:          c.BackoffCap,
		JitterFactor: c.BackoffJitter,
	}
}
