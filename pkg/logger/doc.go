// Package logger builds *slog.Logger instances for the sync service and
// provides attribute helpers so that operation, actor and worker identifiers
// are logged under the same keys everywhere.
//
// New wraps the JSON or text slog handler with LogHandlerDecorator, which runs
// the registered ContextExtractor callbacks on every record. This is how the
// HTTP request id ends up on log lines written deep inside the queue.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.AppEnv, "fieldsync"),
//	    logger.WithLevelName(cfg.LogLevel),
//	    logger.WithContextExtractors(logger.ContextValue("request_id", requestIDKey)),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "operation completed",
//	    logger.OperationID(op.ID),
//	    logger.ActorID(op.ActorID),
//	    logger.Duration(time.Since(start)),
//	)
//
// Error and Errors return an empty attribute for nil errors, so
//
//	log.Info("sweep finished", logger.Error(err))
//
// needs no nil check.
package logger
