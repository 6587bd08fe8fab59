package syncqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

func newOp(actor, key string, createdAt time.Time) *syncqueue.Operation {
	return &syncqueue.Operation{
		ID:             uuid.New(),
		ActorID:        actor,
		Type:           syncqueue.TypeSale,
		Payload:        []byte(`{}`),
		IdempotencyKey: key,
		Ordered:        true,
		Status:         syncqueue.StatusPending,
		MaxRetries:     3,
		NextAttemptAt:  createdAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestMemoryStorage_Register(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("new operation", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		op := newOp("a1", "k1", epoch)

		stored, isNew, err := ms.Register(ctx, op)
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.Equal(t, op.ID, stored.ID)
		assert.Equal(t, int64(1), stored.Seq)

		got, err := ms.Get(ctx, op.ID)
		require.NoError(t, err)
		assert.Equal(t, stored, got)
	})

	t.Run("same key returns the original", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		first, _, err := ms.Register(ctx, newOp("a1", "k1", epoch))
		require.NoError(t, err)

		again, isNew, err := ms.Register(ctx, newOp("a1", "k1", epoch.Add(time.Minute)))
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("key is scoped per actor", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		a, _, err := ms.Register(ctx, newOp("a1", "k1", epoch))
		require.NoError(t, err)
		b, isNew, err := ms.Register(ctx, newOp("a2", "k1", epoch))
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("concurrent registrations of one key create one operation", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			ids  = make(map[uuid.UUID]struct{})
			news int
		)
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stored, isNew, err := ms.Register(ctx, newOp("a1", "same", epoch))
				assert.NoError(t, err)
				mu.Lock()
				ids[stored.ID] = struct{}{}
				if isNew {
					news++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, news)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		_, _, err := ms.Register(ctx, newOp("", "k", epoch))
		assert.ErrorIs(t, err, syncqueue.ErrActorIDRequired)
		_, _, err = ms.Register(ctx, newOp("a", "", epoch))
		assert.ErrorIs(t, err, syncqueue.ErrIdempotencyKeyRequired)
	})

	t.Run("returned copies are detached", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		stored, _, err := ms.Register(ctx, newOp("a1", "k1", epoch))
		require.NoError(t, err)
		stored.Status = syncqueue.StatusCompleted

		got, err := ms.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, syncqueue.StatusPending, got.Status)
	})
}

func TestMemoryStorage_Get(t *testing.T) {
	t.Parallel()

	_, err := syncqueue.NewMemoryStorage().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, syncqueue.ErrOperationNotFound)
}

func TestMemoryStorage_AcquireForActor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	worker := uuid.New()

	t.Run("acquires the oldest operation once", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		first, _, _ := ms.Register(ctx, newOp("a1", "k1", epoch))
		_, _, _ = ms.Register(ctx, newOp("a1", "k2", epoch.Add(time.Second)))

		op, err := ms.AcquireForActor(ctx, "a1", worker, epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, first.ID, op.ID)
		assert.Equal(t, syncqueue.StatusProcessing, op.Status)
		require.NotNil(t, op.LockedBy)
		assert.Equal(t, worker, *op.LockedBy)
		assert.Equal(t, epoch.Add(time.Minute), op.UpdatedAt)

		_, err = ms.AcquireForActor(ctx, "a1", uuid.New(), epoch.Add(time.Minute))
		assert.ErrorIs(t, err, syncqueue.ErrNoOperationToAcquire)
	})

	t.Run("not yet due", func(t *testing.T) {
		t.Parallel()

		ms := syncqueue.NewMemoryStorage()
		_, _, _ = ms.Register(ctx, newOp("a1", "k1", epoch))

		_, err := ms.AcquireForActor(ctx, "a1", worker, epoch.Add(-time.Second))
		assert.ErrorIs(t, err, syncqueue.ErrNoOperationToAcquire)
	})

	t.Run("unknown actor", func(t *testing.T) {
		t.Parallel()

		_, err := syncqueue.NewMemoryStorage().AcquireForActor(ctx, "nobody", worker, epoch)
		assert.ErrorIs(t, err, syncqueue.ErrNoOperationToAcquire)
	})
}

func TestMemoryStorage_Transition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	worker := uuid.New()

	setup := func(t *testing.T) (*syncqueue.MemoryStorage, *syncqueue.Operation) {
		t.Helper()
		ms := syncqueue.NewMemoryStorage()
		_, _, err := ms.Register(ctx, newOp("a1", "k1", epoch))
		require.NoError(t, err)
		op, err := ms.AcquireForActor(ctx, "a1", worker, epoch)
		require.NoError(t, err)
		return ms, op
	}

	t.Run("applies mutation", func(t *testing.T) {
		t.Parallel()

		ms, op := setup(t)
		rc := 1
		reason := "502"
		next := epoch.Add(time.Minute)
		updated, err := ms.Transition(ctx, op.ID, syncqueue.StatusProcessing, syncqueue.StatusPending, syncqueue.Mutation{
			RetryCount:     &rc,
			LastError:      &reason,
			NextAttemptAt:  &next,
			ExpectLockedBy: &worker,
		}, epoch.Add(time.Second))
		require.NoError(t, err)

		assert.Equal(t, syncqueue.StatusPending, updated.Status)
		assert.Equal(t, 1, updated.RetryCount)
		require.NotNil(t, updated.LastError)
		assert.Equal(t, "502", *updated.LastError)
		assert.Equal(t, next, updated.NextAttemptAt)
		assert.Nil(t, updated.LockedBy)
	})

	t.Run("stale status", func(t *testing.T) {
		t.Parallel()

		ms, op := setup(t)
		_, err := ms.Transition(ctx, op.ID, syncqueue.StatusPending, syncqueue.StatusCancelled, syncqueue.Mutation{}, epoch)

		var stale *syncqueue.StaleStateError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, syncqueue.StatusPending, stale.Expected)
		assert.Equal(t, syncqueue.StatusProcessing, stale.Actual)
		assert.True(t, syncqueue.IsStaleState(err))
	})

	t.Run("guard mismatch is stale", func(t *testing.T) {
		t.Parallel()

		ms, op := setup(t)
		other := uuid.New()
		_, err := ms.Transition(ctx, op.ID, syncqueue.StatusProcessing, syncqueue.StatusCompleted,
			syncqueue.Mutation{ExpectLockedBy: &other}, epoch)
		assert.True(t, syncqueue.IsStaleState(err))
	})

	t.Run("invalid transition", func(t *testing.T) {
		t.Parallel()

		ms, op := setup(t)
		_, err := ms.Transition(ctx, op.ID, syncqueue.StatusProcessing, syncqueue.StatusCancelled, syncqueue.Mutation{}, epoch)
		assert.ErrorIs(t, err, syncqueue.ErrInvalidTransition)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		ms, _ := setup(t)
		_, err := ms.Transition(ctx, uuid.New(), syncqueue.StatusProcessing, syncqueue.StatusCompleted, syncqueue.Mutation{}, epoch)
		assert.ErrorIs(t, err, syncqueue.ErrOperationNotFound)
	})
}

func TestMemoryStorage_Queries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := syncqueue.NewMemoryStorage()
	worker := uuid.New()

	for i, actor := range []string{"a3", "a1", "a2"} {
		_, _, err := ms.Register(ctx, newOp(actor, "k1", epoch.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	_, _, err := ms.Register(ctx, newOp("a1", "k2", epoch.Add(10*time.Second)))
	require.NoError(t, err)
	_, err = ms.AcquireForActor(ctx, "a2", worker, epoch.Add(time.Minute))
	require.NoError(t, err)

	now := epoch.Add(time.Minute)

	t.Run("eligible actors skip busy ones, oldest first", func(t *testing.T) {
		actors, err := ms.EligibleActors(ctx, now, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a3", "a1"}, actors)

		actors, err = ms.EligibleActors(ctx, now, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a3"}, actors)
	})

	t.Run("select eligible", func(t *testing.T) {
		ops, err := ms.SelectEligible(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, ops, 3)
		assert.Equal(t, "a3", ops[0].ActorID)
		assert.Equal(t, "a1", ops[1].ActorID)
		assert.Equal(t, "k2", ops[2].IdempotencyKey)
	})

	t.Run("abandoned", func(t *testing.T) {
		ops, err := ms.ListAbandoned(ctx, now.Add(time.Second), 10)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, "a2", ops[0].ActorID)

		ops, err = ms.ListAbandoned(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, ops)
	})
}

func TestMemoryStorage_ListFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := syncqueue.NewMemoryStorage()
	worker := uuid.New()

	fail := func(actor string, typ syncqueue.OperationType, at time.Time) {
		op := newOp(actor, uuid.NewString(), epoch)
		op.Type = typ
		_, _, err := ms.Register(ctx, op)
		require.NoError(t, err)
		acquired, err := ms.AcquireForActor(ctx, actor, worker, epoch)
		require.NoError(t, err)
		reason := "rejected"
		_, err = ms.Transition(ctx, acquired.ID, syncqueue.StatusProcessing, syncqueue.StatusFailed,
			syncqueue.Mutation{LastError: &reason}, at)
		require.NoError(t, err)
	}

	fail("a1", syncqueue.TypeSale, epoch.Add(time.Minute))
	fail("a1", syncqueue.TypePayment, epoch.Add(2*time.Minute))
	fail("a2", syncqueue.TypeSale, epoch.Add(3*time.Minute))

	all, err := ms.ListFailed(ctx, syncqueue.FailedFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a2", all[0].ActorID, "most recent first")

	byActor, err := ms.ListFailed(ctx, syncqueue.FailedFilter{ActorID: "a1"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byType, err := ms.ListFailed(ctx, syncqueue.FailedFilter{Type: syncqueue.TypeSale})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	since, err := ms.ListFailed(ctx, syncqueue.FailedFilter{Since: epoch.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := ms.ListFailed(ctx, syncqueue.FailedFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
