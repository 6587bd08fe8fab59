package syncapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/pkg/validator"
)

const (
	maxActorIDLength = 128
	maxKeyLength     = 255
	maxTypeLength    = 64
	maxListLimit     = 1000
)

type enqueueRequest struct {
	ActorID        string          `json:"actor_id"`
	OperationType  string          `json:"operation_type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (r *enqueueRequest) rules() []validator.Rule {
	return []validator.Rule{
		validator.RequiredString("actor_id", r.ActorID),
		validator.MaxLenString("actor_id", r.ActorID, maxActorIDLength),
		validator.ValidKey("actor_id", r.ActorID),
		validator.RequiredString("operation_type", r.OperationType),
		validator.MaxLenString("operation_type", r.OperationType, maxTypeLength),
		validator.RequiredString("idempotency_key", r.IdempotencyKey),
		validator.MaxLenString("idempotency_key", r.IdempotencyKey, maxKeyLength),
		validator.ValidKey("idempotency_key", r.IdempotencyKey),
		validator.ValidJSONPayload("payload", r.Payload),
	}
}

func (r *enqueueRequest) Validate() error {
	return asValidation(validator.Apply(r.rules()...))
}

func (r *enqueueRequest) toQueue() syncqueue.EnqueueRequest {
	return syncqueue.EnqueueRequest{
		ActorID:        r.ActorID,
		OperationType:  syncqueue.OperationType(r.OperationType),
		Payload:        r.Payload,
		IdempotencyKey: r.IdempotencyKey,
	}
}

type batchRequest struct {
	Operations []enqueueRequest `json:"operations"`
}

func (r *batchRequest) Validate() error {
	return asValidation(validator.Apply(validator.RequiredSlice("operations", r.Operations)))
}

type operationRequest struct {
	ID uuid.UUID `path:"id"`
}

type listFailedRequest struct {
	ActorID       string    `query:"actor_id"`
	OperationType string    `query:"operation_type"`
	Since         time.Time `query:"since"`
	Limit         int       `query:"limit"`
}

func (r *listFailedRequest) Validate() error {
	return asValidation(validator.Apply(
		validator.MinNum("limit", r.Limit, 0),
		validator.MaxNum("limit", r.Limit, maxListLimit),
	))
}

func (r *listFailedRequest) filter() syncqueue.FailedFilter {
	return syncqueue.FailedFilter{
		ActorID: r.ActorID,
		Type:    syncqueue.OperationType(r.OperationType),
		Since:   r.Since,
		Limit:   r.Limit,
	}
}

type listBacklogRequest struct {
	Limit int `query:"limit"`
}

func (r *listBacklogRequest) Validate() error {
	return asValidation(validator.Apply(
		validator.MinNum("limit", r.Limit, 0),
		validator.MaxNum("limit", r.Limit, maxListLimit),
	))
}

// asValidation converts validator failures into the handler's field error map.
func asValidation(err error) error {
	if errs := validator.ExtractValidationErrors(err); errs != nil {
		return toValidationError(errs)
	}
	return err
}
