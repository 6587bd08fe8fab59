package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/requestid"
)

// ErrorMapper translates an error into one the JSON envelope understands,
// typically an HTTPError or a ValidationError. It returns nil when it does
// not recognise err.
type ErrorMapper func(err error) error

// ErrorHandlerOption configures NewErrorHandler.
type ErrorHandlerOption func(*errorHandlerConfig)

type errorHandlerConfig struct {
	mappers []ErrorMapper
}

// WithErrorMappers adds mappers tried in order before the default
// classification.
func WithErrorMappers(mappers ...ErrorMapper) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		c.mappers = append(c.mappers, mappers...)
	}
}

// NewErrorHandler creates the error handler of a JSON API. Errors are logged
// at warn level for 4xx and error level for 5xx, then rendered as the
// {"error": {...}} envelope. Messages of unclassified errors are never sent
// to the client.
func NewErrorHandler(log *slog.Logger, opts ...ErrorHandlerOption) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	cfg := &errorHandlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx Context, err error) {
		detail, status := Describe(classify(err, cfg.mappers))

		r := ctx.Request()
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		resp := &jsonBody{status: status, envelope: Envelope{Error: detail}}
		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response",
				logger.Error(renderErr),
				logger.Event("render_error_response"))
		}
	}
}

// classify returns the client facing form of err.
func classify(err error, mappers []ErrorMapper) error {
	for _, m := range mappers {
		if mapped := m(err); mapped != nil {
			return mapped
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return valErr
	}
	return ErrInternalServerError
}
