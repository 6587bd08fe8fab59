package pgstore

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

const tableName = "sync_operations"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var columns = []string{
	"id",
	"seq",
	"actor_id",
	"operation_type",
	"payload",
	"payload_hash",
	"idempotency_key",
	"ordered",
	"status",
	"retry_count",
	"max_retries",
	"last_error",
	"next_attempt_at",
	"locked_by",
	"created_at",
	"updated_at",
}

// candidate matches pending operations NextForActor could return at now: due,
// and when ordered, not queued behind an older ordered operation in backoff.
func candidate(now time.Time) sq.Sqlizer {
	return sq.Expr(`o.status = ? AND o.next_attempt_at <= ? AND (NOT o.ordered OR NOT EXISTS (
		SELECT 1 FROM `+tableName+` b
		WHERE b.actor_id = o.actor_id AND b.status = ? AND b.ordered
		AND b.next_attempt_at > ? AND (b.created_at, b.seq) < (o.created_at, o.seq)))`,
		string(syncqueue.StatusPending), now, string(syncqueue.StatusPending), now)
}

// idleActor excludes actors with an operation in flight.
func idleActor() sq.Sqlizer {
	return sq.Expr(`NOT EXISTS (
		SELECT 1 FROM `+tableName+` p
		WHERE p.actor_id = o.actor_id AND p.status = ?)`,
		string(syncqueue.StatusProcessing))
}

func insertOperation(op *syncqueue.Operation) sq.InsertBuilder {
	payload := []byte(op.Payload)
	if payload == nil {
		payload = []byte{}
	}
	return psql.Insert(tableName).
		Columns(
			"id", "actor_id", "operation_type", "payload", "payload_hash", "idempotency_key",
			"ordered", "status", "retry_count", "max_retries", "last_error", "next_attempt_at",
			"locked_by", "created_at", "updated_at",
		).
		Values(
			pgUUID(op.ID), op.ActorID, string(op.Type), payload, op.PayloadHash, op.IdempotencyKey,
			op.Ordered, string(op.Status), op.RetryCount, op.MaxRetries, op.LastError, ts(op.NextAttemptAt),
			pgUUIDPtr(op.LockedBy), ts(op.CreatedAt), ts(op.UpdatedAt),
		).
		Suffix("ON CONFLICT (actor_id, idempotency_key) DO NOTHING RETURNING " + returning())
}

func selectOperations() sq.SelectBuilder {
	return psql.Select(columns...).From(tableName + " o")
}

func selectByID(id uuid.UUID) sq.SelectBuilder {
	return selectOperations().Where(sq.Eq{"o.id": pgUUID(id)})
}

func selectByKey(actorID, key string) sq.SelectBuilder {
	return selectOperations().Where(sq.Eq{"o.actor_id": actorID, "o.idempotency_key": key})
}

func selectEligibleActors(now time.Time, limit int) sq.SelectBuilder {
	return psql.Select("o.actor_id").
		From(tableName+" o").
		Where(candidate(now)).
		Where(idleActor()).
		GroupBy("o.actor_id").
		OrderBy("MIN(o.created_at)", "MIN(o.seq)").
		Limit(uint64(limit))
}

// lockActorOps loads the non-terminal operations of an actor for update.
func lockActorOps(actorID string) sq.SelectBuilder {
	return selectOperations().
		Where(sq.Eq{
			"o.actor_id": actorID,
			"o.status":   []string{string(syncqueue.StatusPending), string(syncqueue.StatusProcessing)},
		}).
		OrderBy("o.created_at", "o.seq").
		Suffix("FOR UPDATE")
}

func markProcessing(id, workerID uuid.UUID, now time.Time) sq.UpdateBuilder {
	return psql.Update(tableName).
		Set("status", string(syncqueue.StatusProcessing)).
		Set("locked_by", pgUUID(workerID)).
		Set("updated_at", ts(now)).
		Where(sq.Eq{"id": pgUUID(id), "status": string(syncqueue.StatusPending)}).
		Suffix("RETURNING " + returning())
}

func transition(id uuid.UUID, from, to syncqueue.Status, m syncqueue.Mutation, at time.Time) sq.UpdateBuilder {
	q := psql.Update(tableName).
		Set("status", string(to)).
		Set("updated_at", ts(at)).
		Set("locked_by", nil)

	if m.RetryCount != nil {
		q = q.Set("retry_count", *m.RetryCount)
	}
	switch {
	case m.ClearError:
		q = q.Set("last_error", nil)
	case m.LastError != nil:
		q = q.Set("last_error", *m.LastError)
	}
	if m.NextAttemptAt != nil {
		q = q.Set("next_attempt_at", ts(*m.NextAttemptAt))
	}

	q = q.Where(sq.Eq{"id": pgUUID(id), "status": string(from)})
	if m.ExpectLockedBy != nil {
		q = q.Where(sq.Eq{"locked_by": pgUUID(*m.ExpectLockedBy)})
	}
	if m.ExpectUpdatedAt != nil {
		q = q.Where(sq.Eq{"updated_at": ts(*m.ExpectUpdatedAt)})
	}
	return q.Suffix("RETURNING " + returning())
}

func selectAbandoned(olderThan time.Time, limit int) sq.SelectBuilder {
	return selectOperations().
		Where(sq.Eq{"o.status": string(syncqueue.StatusProcessing)}).
		Where(sq.Lt{"o.updated_at": ts(olderThan)}).
		OrderBy("o.updated_at").
		Limit(uint64(limit))
}

func selectEligible(now time.Time, limit int) sq.SelectBuilder {
	return selectOperations().
		Where(sq.Eq{"o.status": string(syncqueue.StatusPending)}).
		Where(sq.LtOrEq{"o.next_attempt_at": ts(now)}).
		Where(idleActor()).
		OrderBy("o.created_at", "o.seq").
		Limit(uint64(limit))
}

func selectFailed(f syncqueue.FailedFilter) sq.SelectBuilder {
	q := selectOperations().Where(sq.Eq{"o.status": string(syncqueue.StatusFailed)})
	if f.ActorID != "" {
		q = q.Where(sq.Eq{"o.actor_id": f.ActorID})
	}
	if f.Type != "" {
		q = q.Where(sq.Eq{"o.operation_type": string(f.Type)})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"o.updated_at": ts(f.Since)})
	}
	return q.OrderBy("o.updated_at DESC").Limit(uint64(f.EffectiveLimit()))
}

func returning() string {
	s := columns[0]
	for _, c := range columns[1:] {
		s += ", " + c
	}
	return s
}

// ts matches the microsecond precision of timestamptz so that values read
// back compare equal to the ones written.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgUUID(*id)
}
