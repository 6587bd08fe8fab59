package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmptyConnString   = errors.New("pg: empty connection string, set PG_CONN_URL")
	ErrInvalidConnString = errors.New("pg: invalid connection string")
	ErrConnect           = errors.New("pg: cannot connect")
	ErrUnhealthy         = errors.New("pg: ping failed")
	ErrMigrate           = errors.New("pg: migration failed")
	ErrNoMigrations      = errors.New("pg: no migrations filesystem")
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation     = "23505"
	codeSerializationFailed = "40001"
	codeDeadlockDetected    = "40P01"
	codeLockNotAvailable    = "55P03"
)

// IsNotFoundError reports whether err is pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError detects unique constraint violations.
func IsDuplicateKeyError(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// ConstraintName returns the violated constraint of a *pgconn.PgError, if any.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsRetryableError reports errors caused by concurrent transactions that are
// safe to retry as a whole: serialization failures, deadlocks and lock timeouts.
func IsRetryableError(err error) bool {
	return hasCode(err, codeSerializationFailed) ||
		hasCode(err, codeDeadlockDetected) ||
		hasCode(err, codeLockNotAvailable)
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
