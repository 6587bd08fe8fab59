// Package requestid correlates log records of one HTTP request.
//
// Middleware attaches an id to every request: a valid client supplied
// X-Request-ID is reused, otherwise a UUIDv7 is generated. The id is echoed in
// the response header and stored in the request context, where FromContext
// reads it and LoggerExtractor adds it to every slog record:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
