package binder

import "errors"

// Binding errors. Binders wrap them with the offending detail, so match with
// errors.Is.
var (
	ErrMissingContentType   = errors.New("binder: missing Content-Type")
	ErrUnsupportedMediaType = errors.New("binder: unsupported media type")
	ErrRequestTooLarge      = errors.New("binder: request body too large")
	ErrFailedToParseJSON    = errors.New("binder: invalid JSON body")
	ErrFailedToParseQuery   = errors.New("binder: invalid query parameter")
	ErrFailedToParsePath    = errors.New("binder: invalid path parameter")
)
