// Package handler provides type-safe HTTP handlers for JSON APIs.
//
// A handler is a generic function that receives a bound request struct and
// returns a Response. Wrap turns it into an http.HandlerFunc:
//
//	type GetOperationRequest struct {
//		ID uuid.UUID `path:"id"`
//	}
//
//	func getOperation(ctx handler.Context, req GetOperationRequest) handler.Response {
//		info, err := svc.GetStatus(ctx, req.ID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(info)
//	}
//
//	r.Get("/v1/operations/{id}", handler.Wrap(getOperation,
//		handler.WithBinders[handler.Context, GetOperationRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, GetOperationRequest](errHandler),
//	))
//
// # Responses
//
// JSON and JSONError render the envelope
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "details": {...}}}
//
// HTTPError sets the status code and the error code. ValidationError renders
// as 422 with per-field details. Empty renders a status code only.
//
// # Errors
//
// Binding and render failures go to the ErrorHandler. NewErrorHandler logs
// them with the request id and renders the JSON envelope, consulting
// ErrorMappers first so services can translate their domain errors.
package handler
