package syncapi

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fieldsync/handler"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/pkg/validator"
)

func (a *API) enqueue(ctx handler.Context, req enqueueRequest) handler.Response {
	res, err := a.svc.Enqueue(ctx, req.toQueue())
	if err != nil {
		return a.fail(ctx, err)
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return handler.JSON(res, handler.WithJSONStatus(status))
}

// batchItem reports the outcome of one element of a batch, by position.
type batchItem struct {
	Index          int                  `json:"index"`
	IdempotencyKey string               `json:"idempotency_key"`
	OperationID    *uuid.UUID           `json:"operation_id,omitempty"`
	Status         syncqueue.Status     `json:"status,omitempty"`
	Duplicate      bool                 `json:"duplicate"`
	Error          *handler.ErrorDetail `json:"error,omitempty"`
}

// enqueueBatch validates every item, then enqueues the valid ones in their
// original order. Invalid items are reported without stopping the batch.
func (a *API) enqueueBatch(ctx handler.Context, req batchRequest) handler.Response {
	if len(req.Operations) > a.maxBatch {
		return handler.JSONError(toValidationError(validator.ValidationErrors{
			validator.MaxLenSlice("operations", req.Operations, a.maxBatch).Error,
		}))
	}

	items := make([]batchItem, len(req.Operations))
	queued := make([]syncqueue.EnqueueRequest, 0, len(req.Operations))
	positions := make([]int, 0, len(req.Operations))
	for i := range req.Operations {
		op := &req.Operations[i]
		items[i] = batchItem{Index: i, IdempotencyKey: op.IdempotencyKey}

		if err := validator.Apply(op.rules()...); err != nil {
			prefixed := validator.ExtractValidationErrors(err).Prefix(fmt.Sprintf("operations[%d].", i))
			items[i].Error = a.itemError(ctx, prefixed)
			continue
		}
		queued = append(queued, op.toQueue())
		positions = append(positions, i)
	}

	var accepted, duplicates, rejected int
	if len(queued) > 0 {
		results, err := a.svc.EnqueueBatch(ctx, queued)
		if err != nil && len(results) == 0 {
			return a.fail(ctx, err)
		}
		for j, res := range results {
			item := &items[positions[j]]
			if res.Err != nil {
				item.Error = a.itemError(ctx, res.Err)
				continue
			}
			id := res.Result.OperationID
			item.OperationID = &id
			item.Status = res.Result.Status
			item.Duplicate = res.Result.Duplicate
		}
		// A cancelled request context stops the batch early; the rest were not attempted.
		for _, pos := range positions[len(results):] {
			items[pos].Error = &handler.ErrorDetail{Code: "not_attempted", Message: "request ended before this item was enqueued"}
		}
	}

	for _, item := range items {
		switch {
		case item.Error != nil:
			rejected++
		case item.Duplicate:
			duplicates++
		default:
			accepted++
		}
	}

	return handler.JSON(items, handler.WithJSONMeta(map[string]any{
		"accepted":   accepted,
		"duplicates": duplicates,
		"rejected":   rejected,
	}))
}

// itemError renders a per-item failure the way the envelope would.
func (a *API) itemError(ctx handler.Context, err error) *handler.ErrorDetail {
	public := MapError(err)
	if public == nil {
		a.logger.ErrorContext(ctx, "batch item failed", logger.Error(err))
		public = handler.ErrInternalServerError
	}
	detail, _ := handler.Describe(public)
	return detail
}

func (a *API) getOperation(ctx handler.Context, req operationRequest) handler.Response {
	info, err := a.svc.GetStatus(ctx, req.ID)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(info)
}

func (a *API) cancel(ctx handler.Context, req operationRequest) handler.Response {
	info, err := a.svc.Cancel(ctx, req.ID)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(info)
}

func (a *API) requeue(ctx handler.Context, req operationRequest) handler.Response {
	info, err := a.svc.Requeue(ctx, req.ID)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(info)
}

func (a *API) listFailed(ctx handler.Context, req listFailedRequest) handler.Response {
	filter := req.filter()
	ops, err := a.svc.ListFailed(ctx, filter)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(ops, handler.WithJSONMeta(map[string]any{
		"count": len(ops),
		"limit": filter.EffectiveLimit(),
	}))
}

func (a *API) listBacklog(ctx handler.Context, req listBacklogRequest) handler.Response {
	ops, err := a.svc.ListEligible(ctx, req.Limit)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(ops, handler.WithJSONMeta(map[string]any{"count": len(ops)}))
}
