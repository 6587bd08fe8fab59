package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Outcome classifies a single handler attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	}
	return "unknown"
}

// Result is what a handler reports back for one attempt.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Success reports that the operation was applied.
func Success() Result { return Result{Outcome: OutcomeSuccess} }

// TransientFailure reports a failure worth retrying after backoff.
func TransientFailure(reason string) Result {
	return Result{Outcome: OutcomeTransient, Reason: reason}
}

// PermanentFailure reports a rejection that no retry will fix.
func PermanentFailure(reason string) Result {
	return Result{Outcome: OutcomePermanent, Reason: reason}
}

// Handler applies one operation payload against the owning business module.
// Handlers must be idempotent: an attempt that timed out may have taken effect.
// Handlers must also return once ctx is done. The processor stops waiting at
// the handler timeout and the operation may be acquired again after backoff,
// so a handler that ignores ctx can run concurrently with its own retry.
type Handler interface {
	Handle(ctx context.Context, payload []byte) Result
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte) Result

// TypedHandlerFunc handles a decoded payload; see NewTypedHandler.
type TypedHandlerFunc[T any] func(ctx context.Context, payload T) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload []byte) Result {
	return f(ctx, payload)
}

// ErrorHandler adapts an error-returning function, classifying errors with Classify.
func ErrorHandler(fn func(ctx context.Context, payload []byte) error) Handler {
	return HandlerFunc(func(ctx context.Context, payload []byte) Result {
		return Classify(fn(ctx, payload))
	})
}

// NewTypedHandler decodes the JSON payload into T before calling fn.
// A payload that cannot be decoded is a permanent failure.
func NewTypedHandler[T any](fn TypedHandlerFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, payload []byte) Result {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return PermanentFailure(fmt.Sprintf("invalid payload: %v", err))
		}
		return Classify(fn(ctx, v))
	})
}

type operationCtxKey struct{}

// WithOperation stores the operation being executed in ctx.
func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, operationCtxKey{}, op)
}

// OperationFromContext returns the operation a handler is executing.
// Handlers use it to forward the operation id and idempotency key downstream.
func OperationFromContext(ctx context.Context) (*Operation, bool) {
	op, ok := ctx.Value(operationCtxKey{}).(*Operation)
	return op, ok && op != nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was produced by Permanent or wraps ErrValidationRejected.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe) || errors.Is(err, ErrValidationRejected)
}

// Classify turns a handler error into a Result. Errors are retryable unless
// marked permanent.
func Classify(err error) Result {
	switch {
	case err == nil:
		return Success()
	case IsPermanent(err):
		return PermanentFailure(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return TransientFailure(ErrHandlerTimeout.Error())
	default:
		return TransientFailure(err.Error())
	}
}
