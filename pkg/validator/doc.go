// Package validator provides small declarative validation rules.
//
// Each rule pairs a Check function with translation friendly error metadata.
// Apply evaluates rules and aggregates failures into ValidationErrors, which
// implements error:
//
//	err := validator.Apply(
//		validator.RequiredString("actor_id", req.ActorID),
//		validator.ValidKey("idempotency_key", req.IdempotencyKey),
//		validator.ValidJSONPayload("payload", req.Payload),
//	)
//	if errs := validator.ExtractValidationErrors(err); errs != nil {
//		// report errs.Get("payload") ...
//	}
//
// Rules capture their inputs at construction time and hold no global state.
package validator
