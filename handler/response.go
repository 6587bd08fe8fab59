package handler

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
)

// Envelope is the body of every JSON response of the API.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail is the error member of the envelope.
type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

// Describe returns the envelope error of err and the status code it maps to.
// A ValidationError is a 422 with per-field details and an HTTPError carries
// its own code. Anything else is an opaque 500; its message stays on the
// server.
func Describe(err error) (*ErrorDetail, int) {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		detail := &ErrorDetail{Code: "validation_error", Message: valErr.Error()}
		if len(valErr) > 0 {
			detail.Details = maps.Clone(map[string][]string(valErr))
		}
		return detail, http.StatusUnprocessableEntity
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return &ErrorDetail{Code: httpErr.Key, Message: msg}, httpErr.Code
	}

	return &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}, http.StatusInternalServerError
}

type jsonBody struct {
	status   int
	envelope Envelope
}

func (b *jsonBody) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.status)
	return json.NewEncoder(w).Encode(b.envelope)
}

// JSONOption adjusts a JSON response.
type JSONOption func(*jsonBody)

// WithJSONStatus overrides the status code.
func WithJSONStatus(status int) JSONOption {
	return func(b *jsonBody) { b.status = status }
}

// WithJSONMeta sets the meta member, e.g. counts of a listing.
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(b *jsonBody) { b.envelope.Meta = meta }
}

// JSON renders data as {"data": ...} with status 200.
func JSON(data any, opts ...JSONOption) Response {
	b := &jsonBody{status: http.StatusOK, envelope: Envelope{Data: data}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// JSONError renders err as {"error": ...} with the status from Describe.
func JSONError(err error, opts ...JSONOption) Response {
	detail, status := Describe(err)
	b := &jsonBody{status: status, envelope: Envelope{Error: detail}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type statusOnly int

func (s statusOnly) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(int(s))
	return nil
}

// Empty renders 204 No Content.
func Empty() Response {
	return statusOnly(http.StatusNoContent)
}

// EmptyWithStatus renders status without a body, e.g. 202 Accepted.
func EmptyWithStatus(status int) Response {
	return statusOnly(status)
}
