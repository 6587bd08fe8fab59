package forward

import "errors"

var (
	ErrNoEndpoints     = errors.New("no forwarding endpoints configured")
	ErrInvalidEndpoint = errors.New("invalid forwarding endpoint")
	ErrUnknownType     = errors.New("no endpoint for operation type")
	ErrCircuitOpen     = errors.New("endpoint circuit breaker is open")
	ErrInvalidSecret   = errors.New("signing secret is required")
	ErrBadSignature    = errors.New("signature mismatch")
	ErrStaleSignature  = errors.New("signature timestamp outside the accepted window")
)
