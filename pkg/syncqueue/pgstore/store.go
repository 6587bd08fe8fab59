// Package pgstore implements syncqueue.Store on PostgreSQL with pgx/v5.
//
// The idempotency ledger is the (actor_id, idempotency_key) unique constraint
// of the operation table, so registering an operation and recording its key
// are one INSERT ... ON CONFLICT statement. A partial unique index enforces at
// most one processing operation per actor.
package pgstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dmitrymomot/fieldsync/pkg/pg"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is implemented by both DB and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists operations in the sync_operations table.
type Store struct {
	db DB
}

var _ syncqueue.Store = (*Store)(nil)

// New creates a Postgres backed store. Apply Migrations first.
func New(db DB) (*Store, error) {
	if db == nil {
		return nil, syncqueue.ErrStoreNil
	}
	return &Store{db: db}, nil
}

// Register implements syncqueue.LedgerRepository.
func (s *Store) Register(ctx context.Context, op *syncqueue.Operation) (*syncqueue.Operation, bool, error) {
	if op.ActorID == "" {
		return nil, false, syncqueue.ErrActorIDRequired
	}
	if op.IdempotencyKey == "" {
		return nil, false, syncqueue.ErrIdempotencyKeyRequired
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}

	stored, err := queryOne(ctx, s.db, insertOperation(op))
	if err == nil {
		return stored, true, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, false, fmt.Errorf("insert operation: %w", err)
	}

	// ON CONFLICT DO NOTHING returns no row: the key is already taken.
	existing, err := queryOne(ctx, s.db, selectByKey(op.ActorID, op.IdempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("load operation by idempotency key: %w", err)
	}
	return existing, false, nil
}

// Get implements syncqueue.LedgerRepository.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*syncqueue.Operation, error) {
	op, err := queryOne(ctx, s.db, selectByID(id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, syncqueue.ErrOperationNotFound
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

// EligibleActors implements syncqueue.ProcessorRepository.
func (s *Store) EligibleActors(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query, args, err := selectEligibleActors(now, listLimit(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build eligible actors query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query eligible actors: %w", err)
	}
	actors, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan eligible actors: %w", err)
	}
	return actors, nil
}

// AcquireForActor implements syncqueue.ProcessorRepository. The actor's rows
// are read under a transaction scoped advisory lock and FOR UPDATE, the next
// operation is chosen with syncqueue.NextForActor and moved to processing in
// the same transaction.
func (s *Store) AcquireForActor(ctx context.Context, actorID string, workerID uuid.UUID, now time.Time) (*syncqueue.Operation, error) {
	var acquired *syncqueue.Operation

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", actorID); err != nil {
			return fmt.Errorf("lock actor: %w", err)
		}

		ops, err := queryMany(ctx, tx, lockActorOps(actorID))
		if err != nil {
			return fmt.Errorf("load actor operations: %w", err)
		}

		next := syncqueue.NextForActor(ops, now)
		if next == nil {
			return syncqueue.ErrNoOperationToAcquire
		}

		acquired, err = queryOne(ctx, tx, markProcessing(next.ID, workerID, now))
		if err != nil {
			return fmt.Errorf("mark operation processing: %w", err)
		}
		return nil
	})
	if err != nil {
		// Another worker won the actor between our read and the update.
		if pg.IsDuplicateKeyError(err) || pg.IsNotFoundError(err) {
			return nil, syncqueue.ErrNoOperationToAcquire
		}
		return nil, err
	}
	return acquired, nil
}

// Transition implements syncqueue.ProcessorRepository.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to syncqueue.Status, m syncqueue.Mutation, at time.Time) (*syncqueue.Operation, error) {
	if err := syncqueue.ValidateTransition(from, to); err != nil {
		return nil, err
	}

	op, err := queryOne(ctx, s.db, transition(id, from, to, m, at))
	if err == nil {
		return op, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("transition operation %s: %w", id, err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &syncqueue.StaleStateError{ID: id, Expected: from, Actual: current.Status}
}

// ListAbandoned implements syncqueue.ProcessorRepository.
func (s *Store) ListAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]*syncqueue.Operation, error) {
	ops, err := queryMany(ctx, s.db, selectAbandoned(olderThan, listLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("list abandoned operations: %w", err)
	}
	return ops, nil
}

// SelectEligible implements syncqueue.AdminRepository.
func (s *Store) SelectEligible(ctx context.Context, now time.Time, limit int) ([]*syncqueue.Operation, error) {
	ops, err := queryMany(ctx, s.db, selectEligible(now, listLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("select eligible operations: %w", err)
	}
	return ops, nil
}

// ListFailed implements syncqueue.AdminRepository.
func (s *Store) ListFailed(ctx context.Context, filter syncqueue.FailedFilter) ([]*syncqueue.Operation, error) {
	ops, err := queryMany(ctx, s.db, selectFailed(filter))
	if err != nil {
		return nil, fmt.Errorf("list failed operations: %w", err)
	}
	return ops, nil
}

// decodeStatus rejects rows written by a newer schema with unknown statuses.
func decodeStatus(s string) (syncqueue.Status, error) {
	status := syncqueue.Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown operation status %q", s)
	}
	return status, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return syncqueue.DefaultListLimit
	}
	return limit
}

func queryOne(ctx context.Context, q querier, b sq.Sqlizer) (*syncqueue.Operation, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return scanOperation(q.QueryRow(ctx, query, args...))
}

func queryMany(ctx context.Context, q querier, b sq.Sqlizer) ([]*syncqueue.Operation, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*syncqueue.Operation, error) {
		return scanOperation(row)
	})
}

func scanOperation(row pgx.Row) (*syncqueue.Operation, error) {
	var (
		op       syncqueue.Operation
		id       pgtype.UUID
		lockedBy pgtype.UUID
		opType   string
		status   string
		payload  []byte
	)
	err := row.Scan(
		&id,
		&op.Seq,
		&op.ActorID,
		&opType,
		&payload,
		&op.PayloadHash,
		&op.IdempotencyKey,
		&op.Ordered,
		&status,
		&op.RetryCount,
		&op.MaxRetries,
		&op.LastError,
		&op.NextAttemptAt,
		&lockedBy,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	op.ID = uuid.UUID(id.Bytes)
	op.Type = syncqueue.OperationType(opType)
	if op.Status, err = decodeStatus(status); err != nil {
		return nil, err
	}
	op.Payload = payload
	if lockedBy.Valid {
		worker := uuid.UUID(lockedBy.Bytes)
		op.LockedBy = &worker
	}
	return &op, nil
}
