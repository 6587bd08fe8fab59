package syncqueue

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of classifying one attempt.
type Decision struct {
	To            Status
	RetryCount    int
	NextAttemptAt time.Time
	LastError     string
	ClearError    bool
	// Exhausted is set when a retryable failure hit the retry budget.
	Exhausted bool
}

// Retry reports whether the operation goes back to pending.
func (d Decision) Retry() bool { return d.To == StatusPending }

// Mutation converts the decision into store field changes.
func (d Decision) Mutation() Mutation {
	rc := d.RetryCount
	m := Mutation{RetryCount: &rc}
	if d.ClearError {
		m.ClearError = true
	} else {
		msg := d.LastError
		m.LastError = &msg
	}
	if d.To == StatusPending {
		next := d.NextAttemptAt
		m.NextAttemptAt = &next
	}
	return m
}

// RetryController decides what happens to an operation after an attempt.
type RetryController struct {
	backoff Backoff
}

// NewRetryController creates a controller using the given backoff schedule.
func NewRetryController(backoff Backoff) *RetryController {
	return &RetryController{backoff: backoff}
}

// Decide maps a handler result onto the next lifecycle state of op.
// Permanent failures keep retry_count as is; a transient failure consumes one
// retry or, when none are left, fails the operation for good.
func (c *RetryController) Decide(op *Operation, res Result, now time.Time) Decision {
	switch res.Outcome {
	case OutcomeSuccess:
		return Decision{To: StatusCompleted, RetryCount: op.RetryCount, ClearError: true}
	case OutcomePermanent:
		return Decision{To: StatusFailed, RetryCount: op.RetryCount, LastError: storableReason(res.Reason)}
	default:
		return c.retryOrFail(op, storableReason(res.Reason), now)
	}
}

// Reclaim decides the fate of an operation abandoned in processing.
// The lost attempt counts against the retry budget.
func (c *RetryController) Reclaim(op *Operation, now time.Time) Decision {
	return c.retryOrFail(op, ErrAbandonedOperation.Error(), now)
}

func (c *RetryController) retryOrFail(op *Operation, reason string, now time.Time) Decision {
	if op.RetryCount >= op.MaxRetries {
		return Decision{
			To:         StatusFailed,
			RetryCount: op.RetryCount,
			LastError:  fmt.Sprintf("%s: %s", ErrRetryBudgetExhausted, reason),
			Exhausted:  true,
		}
	}
	return Decision{
		To:            StatusPending,
		RetryCount:    op.RetryCount + 1,
		NextAttemptAt: now.Add(c.backoff.Delay(op.RetryCount)),
		LastError:     reason,
	}
}

// storableReason makes a handler supplied reason safe for a text column:
// invalid UTF-8 is replaced and NUL bytes are dropped.
func storableReason(reason string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(reason, "\uFFFD"), "\x00", "")
}
