package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// Exit codes of the fieldsync binary.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation was refused, e.g. cancelling a processing operation
	ExitCommandError = 2 // bad flags, configuration or unreachable dependencies
	ExitNotFound     = 3
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// queueExit classifies an error returned by the queue service.
func queueExit(message string, err error) *ExitError {
	switch {
	case errors.Is(err, syncqueue.ErrOperationNotFound):
		return WrapExitError(ExitNotFound, message, err)
	case errors.Is(err, syncqueue.ErrNotCancellable), errors.Is(err, syncqueue.ErrNotRequeueable):
		return WrapExitError(ExitFailure, message, err)
	default:
		return WrapExitError(ExitCommandError, message, err)
	}
}
