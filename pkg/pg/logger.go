package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
)

// logger is the subset of *slog.Logger the migration runner writes to.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// gooseLogger routes goose's printf output into a structured logger.
type gooseLogger struct {
	log logger
}

var _ goose.Logger = (*gooseLogger)(nil)

func (a *gooseLogger) Fatalf(format string, v ...any) {
	a.log.ErrorContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a *gooseLogger) Printf(format string, v ...any) {
	a.log.InfoContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}
