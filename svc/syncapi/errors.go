package syncapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrymomot/fieldsync/handler"
	"github.com/dmitrymomot/fieldsync/pkg/binder"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/pkg/validator"
)

// ErrServiceNil is returned by New without a queue service.
var ErrServiceNil = errors.New("syncapi: service cannot be nil")

var (
	errUnknownOperationType = handler.NewHTTPError(http.StatusUnprocessableEntity, "unknown_operation_type")
	errIdempotencyConflict  = handler.NewHTTPError(http.StatusConflict, "idempotency_conflict")
	errOperationNotFound    = handler.NewHTTPError(http.StatusNotFound, "operation_not_found")
	errNotCancellable       = handler.NewHTTPError(http.StatusConflict, "not_cancellable")
	errNotRequeueable       = handler.NewHTTPError(http.StatusConflict, "not_requeueable")
	errEventsDisabled       = handler.NewHTTPError(http.StatusNotImplemented, "event_stream_disabled")
)

// MapError translates queue, binder and validator errors into the errors the
// JSON envelope renders. It returns nil for anything else.
func MapError(err error) error {
	var conflict *syncqueue.ConflictError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &conflict):
		return errIdempotencyConflict.WithMessage(conflict.Error())
	case errors.Is(err, syncqueue.ErrUnknownOperationType):
		return errUnknownOperationType.WithMessage(err.Error())
	case errors.Is(err, syncqueue.ErrOperationNotFound):
		return errOperationNotFound
	case errors.Is(err, syncqueue.ErrNotCancellable):
		return errNotCancellable.WithMessage(err.Error())
	case errors.Is(err, syncqueue.ErrNotRequeueable):
		return errNotRequeueable.WithMessage(err.Error())
	case errors.Is(err, syncqueue.ErrActorIDRequired),
		errors.Is(err, syncqueue.ErrIdempotencyKeyRequired),
		errors.Is(err, syncqueue.ErrEmptyBatch):
		return handler.ErrBadRequest.WithMessage(err.Error())
	case errors.Is(err, binder.ErrRequestTooLarge):
		return handler.ErrRequestTooLarge.WithMessage(err.Error())
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return handler.ErrUnsupportedMediaType.WithMessage(err.Error())
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParsePath),
		errors.Is(err, binder.ErrFailedToParseQuery):
		return handler.ErrBadRequest.WithMessage(err.Error())
	}

	if errs := validator.ExtractValidationErrors(err); errs != nil {
		return toValidationError(errs)
	}
	return nil
}

func toValidationError(errs validator.ValidationErrors) handler.ValidationError {
	out := handler.NewValidationError()
	for _, e := range errs {
		out.Add(e.Field, e.Message)
	}
	return out
}

// fail renders err for the client. Errors MapError does not know are logged
// and hidden behind a generic 500.
func (a *API) fail(ctx context.Context, err error) handler.Response {
	if public := MapError(err); public != nil {
		return handler.JSONError(public)
	}
	a.logger.ErrorContext(ctx, "request failed", logger.Error(err))
	return handler.JSONError(handler.ErrInternalServerError)
}
