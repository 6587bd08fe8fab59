package syncqueue

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// transitions lists every allowed status change. Entering processing is only
// possible through AcquireForActor.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusPending, StatusFailed},
	StatusFailed:     {StatusPending},
	StatusCancelled:  {StatusPending},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// ValidateTransition checks a transition requested through a store's Transition method.
func ValidateTransition(from, to Status) error {
	if to == StatusProcessing || !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// Mutation describes the field changes applied together with a status transition.
// Nil fields are left untouched. The Expect* fields are extra optimistic guards:
// when set, the transition only applies if the stored value still matches.
type Mutation struct {
	RetryCount    *int
	LastError     *string
	ClearError    bool
	NextAttemptAt *time.Time

	ExpectLockedBy  *uuid.UUID
	ExpectUpdatedAt *time.Time
}

// Matches reports whether the guards hold for op.
func (m Mutation) Matches(op *Operation) bool {
	if m.ExpectLockedBy != nil && (op.LockedBy == nil || *op.LockedBy != *m.ExpectLockedBy) {
		return false
	}
	if m.ExpectUpdatedAt != nil && !op.UpdatedAt.Equal(*m.ExpectUpdatedAt) {
		return false
	}
	return true
}

// Apply writes the mutation and the new status onto op.
func (m Mutation) Apply(op *Operation, to Status, at time.Time) {
	op.Status = to
	op.UpdatedAt = at
	op.LockedBy = nil
	if m.RetryCount != nil {
		op.RetryCount = *m.RetryCount
	}
	if m.ClearError {
		op.LastError = nil
	} else if m.LastError != nil {
		e := *m.LastError
		op.LastError = &e
	}
	if m.NextAttemptAt != nil {
		op.NextAttemptAt = *m.NextAttemptAt
	}
}

// NextForActor picks the operation a worker should run next for one actor.
// ops may contain every non-terminal operation of the actor in any order.
//
// Nothing is returned while the actor has an operation in processing. Pending
// operations are walked oldest first: an unordered one is picked as soon as it
// is eligible, an ordered one only when no older ordered operation is still
// pending.
func NextForActor(ops []*Operation, now time.Time) *Operation {
	pending := make([]*Operation, 0, len(ops))
	for _, op := range ops {
		switch op.Status {
		case StatusProcessing:
			return nil
		case StatusPending:
			pending = append(pending, op)
		}
	}

	sortOldestFirst(pending)

	blocked := false
	for _, op := range pending {
		eligible := op.Eligible(now)
		if op.Ordered {
			if blocked {
				continue
			}
			if !eligible {
				blocked = true
				continue
			}
			return op
		}
		if eligible {
			return op
		}
	}
	return nil
}
