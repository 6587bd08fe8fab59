package syncqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no automatic transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// OperationType tags the business mutation an operation carries.
type OperationType string

const (
	TypeSale          OperationType = "sale"
	TypeStockAdjust   OperationType = "stock_adjust"
	TypePayment       OperationType = "payment"
	TypePurchase      OperationType = "purchase"
	TypeSocialPayment OperationType = "social_payment"
)

// BuiltinTypes lists the operation types shipped with the default dispatch table.
func BuiltinTypes() []OperationType {
	return []OperationType{TypeSale, TypeStockAdjust, TypePayment, TypePurchase, TypeSocialPayment}
}

func (t OperationType) String() string { return string(t) }

// Operation is a single buffered business mutation submitted by an actor.
type Operation struct {
	ID             uuid.UUID       `json:"id"`
	Seq            int64           `json:"seq"`
	ActorID        string          `json:"actor_id"`
	Type           OperationType   `json:"operation_type"`
	Payload        json.RawMessage `json:"payload"`
	PayloadHash    string          `json:"payload_hash"`
	IdempotencyKey string          `json:"idempotency_key"`
	Ordered        bool            `json:"ordered"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LockedBy       *uuid.UUID      `json:"locked_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Eligible reports whether the operation may be picked up at now.
func (o *Operation) Eligible(now time.Time) bool {
	return o.Status == StatusPending && !o.NextAttemptAt.After(now)
}

// Before orders operations by creation time, then by insertion sequence.
func (o *Operation) Before(other *Operation) bool {
	if o.CreatedAt.Equal(other.CreatedAt) {
		return o.Seq < other.Seq
	}
	return o.CreatedAt.Before(other.CreatedAt)
}

// Info returns the externally visible status of the operation.
func (o *Operation) Info() StatusInfo {
	info := StatusInfo{
		OperationID:   o.ID,
		ActorID:       o.ActorID,
		OperationType: o.Type,
		Status:        o.Status,
		RetryCount:    o.RetryCount,
		MaxRetries:    o.MaxRetries,
		NextAttemptAt: o.NextAttemptAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.LastError != nil {
		info.LastError = *o.LastError
	}
	return info
}

func (o *Operation) clone() *Operation {
	c := *o
	if o.Payload != nil {
		c.Payload = append(json.RawMessage(nil), o.Payload...)
	}
	if o.LastError != nil {
		e := *o.LastError
		c.LastError = &e
	}
	if o.LockedBy != nil {
		id := *o.LockedBy
		c.LockedBy = &id
	}
	return &c
}

// StatusInfo is the answer to a status query.
type StatusInfo struct {
	OperationID   uuid.UUID     `json:"operation_id"`
	ActorID       string        `json:"actor_id"`
	OperationType OperationType `json:"operation_type"`
	Status        Status        `json:"status"`
	RetryCount    int           `json:"retry_count"`
	MaxRetries    int           `json:"max_retries"`
	LastError     string        `json:"last_error,omitempty"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// FailedFilter narrows the admin listing of failed operations.
// Zero values match everything.
type FailedFilter struct {
	ActorID string        `query:"actor_id"`
	Type    OperationType `query:"operation_type"`
	Since   time.Time     `query:"since"`
	Limit   int           `query:"limit"`
}

// DefaultListLimit caps admin listings when no limit is supplied.
const DefaultListLimit = 100

// EffectiveLimit returns the limit to apply, falling back to DefaultListLimit.
func (f FailedFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Match reports whether op satisfies the filter.
func (f FailedFilter) Match(op *Operation) bool {
	if op.Status != StatusFailed {
		return false
	}
	if f.ActorID != "" && op.ActorID != f.ActorID {
		return false
	}
	if f.Type != "" && op.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && op.UpdatedAt.Before(f.Since) {
		return false
	}
	return true
}

// HashPayload returns the hex encoded SHA-256 of the payload bytes.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
