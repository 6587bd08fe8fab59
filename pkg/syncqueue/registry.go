package syncqueue

import (
	"fmt"
	"slices"
	"sync"
)

// Policy holds the per-type execution settings captured at enqueue.
type Policy struct {
	MaxRetries int
	Ordered    bool
}

type registration struct {
	handler Handler
	policy  Policy
}

// RegisterOption customises how an operation type is executed.
type RegisterOption func(*registration)

// WithMaxRetries overrides the default retry budget for the type.
func WithMaxRetries(n int) RegisterOption {
	return func(r *registration) {
		if n >= 0 {
			r.policy.MaxRetries = n
		}
	}
}

// WithUnordered lets operations of the type run ahead of older operations
// of the same actor.
func WithUnordered() RegisterOption {
	return func(r *registration) {
		r.policy.Ordered = false
	}
}

// Registry maps operation types to their handlers. Types are ordered by default.
type Registry struct {
	mu                sync.RWMutex
	entries           map[OperationType]registration
	defaultMaxRetries int
}

// NewRegistry creates an empty registry; defaultMaxRetries applies to every
// type registered without WithMaxRetries.
func NewRegistry(defaultMaxRetries int) *Registry {
	return &Registry{
		entries:           make(map[OperationType]registration),
		defaultMaxRetries: max(defaultMaxRetries, 0),
	}
}

// Register binds a handler to an operation type.
func (r *Registry) Register(t OperationType, h Handler, opts ...RegisterOption) error {
	if t == "" {
		return ErrOperationTypeRequired
	}
	if h == nil {
		return ErrHandlerNil
	}

	reg := registration{
		handler: h,
		policy:  Policy{MaxRetries: r.defaultMaxRetries, Ordered: true},
	}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[t]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, t)
	}
	r.entries[t] = reg
	return nil
}

// Lookup returns the handler bound to t.
func (r *Registry) Lookup(t OperationType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[t]
	return reg.handler, ok
}

// Policy returns the execution settings of t, or ErrUnknownOperationType.
func (r *Registry) Policy(t OperationType) (Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[t]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownOperationType, t)
	}
	return reg.policy, nil
}

// Types returns the registered operation types sorted by name.
func (r *Registry) Types() []OperationType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]OperationType, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
