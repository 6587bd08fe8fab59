package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// OperationID records the queued operation identifier under the key "operation_id".
// If id is nil, it returns an empty Attr.
func OperationID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("operation_id", id)
}

// ActorID records the submitting actor under the key "actor_id".
// An empty id yields an empty Attr.
func ActorID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("actor_id", id)
}

// OperationType records the operation type under the key "operation_type".
func OperationType[T ~string](t T) slog.Attr {
	return slog.String("operation_type", string(t))
}

// Status records a lifecycle status under the key "status".
func Status[T ~string](s T) slog.Attr {
	return slog.String("status", string(s))
}

// IdempotencyKey records the client supplied key under the key "idempotency_key".
func IdempotencyKey(key string) slog.Attr {
	return slog.String("idempotency_key", key)
}

// WorkerID records the worker identifier under the key "worker_id".
func WorkerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("worker_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// MaxRetries records the retry budget under the key "max_retries".
func MaxRetries(n int) slog.Attr {
	return slog.Int("max_retries", n)
}

// NextAttemptAt records when a retry becomes eligible under the key "next_attempt_at".
func NextAttemptAt(t time.Time) slog.Attr {
	return slog.Time("next_attempt_at", t)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
