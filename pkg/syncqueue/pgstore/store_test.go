package pgstore_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/pg"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue/pgstore"
)

var (
	setupOnce sync.Once
	sharedDB  *pgxpool.Pool
	setupErr  error
)

// newStore connects to the database named by PG_CONN_URL, applies the
// migrations once per test binary, or skips the test.
func newStore(t *testing.T) (*pgstore.Store, *pgxpool.Pool) {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	setupOnce.Do(func() {
		ctx := context.Background()
		sharedDB, setupErr = pg.Connect(ctx, pg.Config{
			ConnectionString: url,
			MaxOpenConns:     20,
			MaxIdleConns:     2,
			RetryAttempts:    1,
		})
		if setupErr != nil {
			return
		}
		setupErr = pg.Migrate(ctx, sharedDB, pgstore.Migrations, "syncqueue_schema_migrations", logger.Discard())
	})
	require.NoError(t, setupErr)

	store, err := pgstore.New(sharedDB)
	require.NoError(t, err)
	return store, sharedDB
}

// uniqueActor keeps tests independent on a shared table.
func uniqueActor(t *testing.T) string {
	t.Helper()
	return "merchant-" + uuid.NewString()
}

func newOperation(actorID, key string, at time.Time) *syncqueue.Operation {
	payload := []byte(`{"sku":"A-1","qty":2}`)
	return &syncqueue.Operation{
		ID:             uuid.New(),
		ActorID:        actorID,
		Type:           syncqueue.TypeSale,
		Payload:        payload,
		PayloadHash:    syncqueue.HashPayload(payload),
		IdempotencyKey: key,
		Ordered:        true,
		Status:         syncqueue.StatusPending,
		MaxRetries:     3,
		NextAttemptAt:  at,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestStore_RegisterConcurrentSameKey(t *testing.T) {
	t.Parallel()

	store, db := newStore(t)
	ctx := context.Background()
	actor := uniqueActor(t)
	at := time.Now()

	const submitters = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = make(map[uuid.UUID]struct{})
		errs    []error
	)
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op, isNew, err := store.Register(ctx, newOperation(actor, "sale-0042", at))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if isNew {
				created++
			}
			ids[op.ID] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	var rows int
	require.NoError(t, db.QueryRow(ctx,
		"SELECT count(*) FROM sync_operations WHERE actor_id = $1", actor).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestStore_RegisterReturnsExisting(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	actor := uniqueActor(t)

	first, isNew, err := store.Register(ctx, newOperation(actor, "k1", time.Now()))
	require.NoError(t, err)
	require.True(t, isNew)

	again, isNew, err := store.Register(ctx, newOperation(actor, "k1", time.Now()))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Seq, again.Seq)
}

func TestStore_AcquireForActorSingleWinner(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	actor := uniqueActor(t)
	at := time.Now().Add(-time.Minute)

	older, _, err := store.Register(ctx, newOperation(actor, "k1", at))
	require.NoError(t, err)
	_, _, err = store.Register(ctx, newOperation(actor, "k2", at.Add(time.Second)))
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired []*syncqueue.Operation
		misses   int
		errs     []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op, err := store.AcquireForActor(ctx, actor, uuid.New(), time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				acquired = append(acquired, op)
			case errors.Is(err, syncqueue.ErrNoOperationToAcquire):
				misses++
			default:
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, acquired, 1)
	assert.Equal(t, workers-1, misses)
	assert.Equal(t, older.ID, acquired[0].ID)
	assert.Equal(t, syncqueue.StatusProcessing, acquired[0].Status)
	require.NotNil(t, acquired[0].LockedBy)
}

func TestStore_TransitionStaleState(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()

	op, _, err := store.Register(ctx, newOperation(uniqueActor(t), "k1", time.Now()))
	require.NoError(t, err)

	cancelled, err := store.Transition(ctx, op.ID, syncqueue.StatusPending, syncqueue.StatusCancelled, syncqueue.Mutation{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusCancelled, cancelled.Status)

	_, err = store.Transition(ctx, op.ID, syncqueue.StatusPending, syncqueue.StatusCancelled, syncqueue.Mutation{}, time.Now())
	var stale *syncqueue.StaleStateError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, syncqueue.StatusPending, stale.Expected)
	assert.Equal(t, syncqueue.StatusCancelled, stale.Actual)

	_, err = store.Transition(ctx, uuid.New(), syncqueue.StatusPending, syncqueue.StatusCancelled, syncqueue.Mutation{}, time.Now())
	assert.ErrorIs(t, err, syncqueue.ErrOperationNotFound)
}

func TestStore_ReclaimGuardedByUpdatedAt(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	actor := uniqueActor(t)
	rc := syncqueue.NewRetryController(syncqueue.Backoff{Base: time.Second, Cap: time.Minute})

	// Nanosecond timestamps exercise the microsecond round trip.
	t0 := time.Now().Add(-time.Hour)
	op, _, err := store.Register(ctx, newOperation(actor, "k1", t0))
	require.NoError(t, err)

	worker := uuid.New()
	first, err := store.AcquireForActor(ctx, actor, worker, t0.Add(1234567*time.Nanosecond))
	require.NoError(t, err)
	seen, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	require.True(t, seen.UpdatedAt.Equal(first.UpdatedAt))

	// The owner gives up and a new attempt starts after the listing.
	t1 := t0.Add(time.Minute + 789*time.Nanosecond)
	_, err = store.Transition(ctx, op.ID, syncqueue.StatusProcessing, syncqueue.StatusPending,
		syncqueue.Mutation{NextAttemptAt: &t1, ExpectLockedBy: &worker}, t1)
	require.NoError(t, err)
	_, err = store.AcquireForActor(ctx, actor, uuid.New(), t1.Add(time.Second))
	require.NoError(t, err)

	m := rc.Reclaim(seen, time.Now()).Mutation()
	m.ExpectUpdatedAt = &seen.UpdatedAt
	_, err = store.Transition(ctx, op.ID, syncqueue.StatusProcessing, syncqueue.StatusPending, m, time.Now())
	assert.True(t, syncqueue.IsStaleState(err))

	current, err := store.Get(ctx, op.ID)
	require.NoError(t, err)
	d := rc.Reclaim(current, time.Now())
	m = d.Mutation()
	m.ExpectUpdatedAt = &current.UpdatedAt
	reclaimed, err := store.Transition(ctx, op.ID, syncqueue.StatusProcessing, d.To, m, time.Now())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusPending, reclaimed.Status)
	assert.Equal(t, 1, reclaimed.RetryCount)
	assert.Nil(t, reclaimed.LockedBy)
	require.NotNil(t, reclaimed.LastError)
	assert.Equal(t, syncqueue.ErrAbandonedOperation.Error(), *reclaimed.LastError)
}

func TestStore_FailedReasonWithBrokenUTF8(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	actor := uniqueActor(t)
	rc := syncqueue.NewRetryController(syncqueue.Backoff{Base: time.Second, Cap: time.Minute})

	op, _, err := store.Register(ctx, newOperation(actor, "k1", time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	acquired, err := store.AcquireForActor(ctx, actor, uuid.New(), time.Now())
	require.NoError(t, err)

	d := rc.Decide(acquired, syncqueue.PermanentFailure("paiement refus\xc3"), time.Now())
	failed, err := store.Transition(ctx, op.ID, syncqueue.StatusProcessing, d.To, d.Mutation(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	assert.True(t, utf8.ValidString(*failed.LastError))
}
