package syncqueue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

func registerAll(r *syncqueue.Registry) {
	for _, typ := range syncqueue.BuiltinTypes() {
		_ = r.Register(typ, okHandler())
	}
}

func TestNewService(t *testing.T) {
	t.Parallel()

	_, err := syncqueue.NewService(nil, syncqueue.NewRegistry(3))
	assert.ErrorIs(t, err, syncqueue.ErrStoreNil)

	_, err = syncqueue.NewService(syncqueue.NewMemoryStorage(), nil)
	assert.ErrorIs(t, err, syncqueue.ErrRegistryNil)
}

func TestService_Enqueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("new operation is pending", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		res := h.enqueue(t, "merchant-1", syncqueue.TypeSale, "dev-1:0001", salePayload{ProductID: "p-1", Quantity: 2})

		assert.NotEqual(t, uuid.Nil, res.OperationID)
		assert.Equal(t, syncqueue.StatusPending, res.Status)
		assert.False(t, res.Duplicate)

		info := h.status(t, res)
		assert.Equal(t, "merchant-1", info.ActorID)
		assert.Equal(t, 3, info.MaxRetries)
		assert.Equal(t, 0, info.RetryCount)
	})

	t.Run("duplicate returns the original operation", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		first := h.enqueue(t, "merchant-1", syncqueue.TypeSale, "dev-1:0001", salePayload{ProductID: "p-1"})
		second := h.enqueue(t, "merchant-1", syncqueue.TypeSale, "dev-1:0001", salePayload{ProductID: "p-2"})

		assert.Equal(t, first.OperationID, second.OperationID)
		assert.True(t, second.Duplicate)
	})

	t.Run("strict mode rejects a different payload", func(t *testing.T) {
		t.Parallel()

		store := syncqueue.NewMemoryStorage()
		registry := syncqueue.NewRegistry(3)
		registerAll(registry)
		svc, err := syncqueue.NewService(store, registry,
			syncqueue.WithStrictPayloadMatch(true),
			syncqueue.WithServiceLogger(logger.Discard()),
		)
		require.NoError(t, err)

		req := syncqueue.EnqueueRequest{
			ActorID:        "merchant-1",
			OperationType:  syncqueue.TypeSale,
			Payload:        json.RawMessage(`{"product_id":"p-1"}`),
			IdempotencyKey: "k",
		}
		first, err := svc.Enqueue(ctx, req)
		require.NoError(t, err)

		same, err := svc.Enqueue(ctx, req)
		require.NoError(t, err)
		assert.True(t, same.Duplicate)

		req.Payload = json.RawMessage(`{"product_id":"p-2"}`)
		_, err = svc.Enqueue(ctx, req)
		require.True(t, syncqueue.IsConflict(err))

		var conflict *syncqueue.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, first.OperationID, conflict.OperationID)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		_, err := h.service.Enqueue(ctx, syncqueue.EnqueueRequest{OperationType: syncqueue.TypeSale, IdempotencyKey: "k"})
		assert.ErrorIs(t, err, syncqueue.ErrActorIDRequired)

		_, err = h.service.Enqueue(ctx, syncqueue.EnqueueRequest{ActorID: "a", OperationType: syncqueue.TypeSale})
		assert.ErrorIs(t, err, syncqueue.ErrIdempotencyKeyRequired)

		_, err = h.service.Enqueue(ctx, syncqueue.EnqueueRequest{ActorID: "a", OperationType: "refund", IdempotencyKey: "k"})
		assert.ErrorIs(t, err, syncqueue.ErrUnknownOperationType)
	})

	t.Run("policy is captured at enqueue", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, func(r *syncqueue.Registry) {
			_ = r.Register(syncqueue.TypePayment, okHandler(), syncqueue.WithMaxRetries(2), syncqueue.WithUnordered())
		})
		res := h.enqueue(t, "a", syncqueue.TypePayment, "k", map[string]int{"amount": 10})

		op, err := h.store.Get(ctx, res.OperationID)
		require.NoError(t, err)
		assert.Equal(t, 2, op.MaxRetries)
		assert.False(t, op.Ordered)
		assert.Equal(t, syncqueue.HashPayload(op.Payload), op.PayloadHash)
	})

	t.Run("publishes enqueued event", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		sub := h.bus.Subscribe(ctx, "a")
		res := h.enqueue(t, "a", syncqueue.TypeSale, "k", nil)

		select {
		case ev := <-sub.Events():
			assert.Equal(t, syncqueue.EventEnqueued, ev.Kind)
			assert.Equal(t, res.OperationID, ev.OperationID)
		case <-time.After(time.Second):
			t.Fatal("no event")
		}
	})
}

func TestService_EnqueueBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, registerAll)

	_, err := h.service.EnqueueBatch(ctx, nil)
	assert.ErrorIs(t, err, syncqueue.ErrEmptyBatch)

	existing := h.enqueue(t, "a", syncqueue.TypeSale, "k0", nil)

	results, err := h.service.EnqueueBatch(ctx, []syncqueue.EnqueueRequest{
		{ActorID: "a", OperationType: syncqueue.TypeSale, IdempotencyKey: "k0", Payload: json.RawMessage(`null`)},
		{ActorID: "a", OperationType: syncqueue.TypeStockAdjust, IdempotencyKey: "k1", Payload: json.RawMessage(`{}`)},
		{ActorID: "a", OperationType: "refund", IdempotencyKey: "k2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NotNil(t, results[0].Result)
	assert.True(t, results[0].Result.Duplicate)
	assert.Equal(t, existing.OperationID, results[0].Result.OperationID)

	require.NotNil(t, results[1].Result)
	assert.False(t, results[1].Result.Duplicate)

	assert.Nil(t, results[2].Result)
	assert.ErrorIs(t, results[2].Err, syncqueue.ErrUnknownOperationType)
	assert.Equal(t, "k2", results[2].IdempotencyKey)

	first, err := h.store.Get(ctx, existing.OperationID)
	require.NoError(t, err)
	second, err := h.store.Get(ctx, results[1].Result.OperationID)
	require.NoError(t, err)
	assert.True(t, first.Before(second), "batch items keep submission order")
}

func TestService_GetStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registerAll)
	_, err := h.service.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, syncqueue.ErrOperationNotFound)
}

func TestService_CancelAndRequeue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("cancel pending", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		res := h.enqueue(t, "a", syncqueue.TypeSale, "k", nil)

		info, err := h.service.Cancel(ctx, res.OperationID)
		require.NoError(t, err)
		assert.Equal(t, syncqueue.StatusCancelled, info.Status)

		_, err = h.service.Cancel(ctx, res.OperationID)
		assert.ErrorIs(t, err, syncqueue.ErrNotCancellable)

		n, err := h.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "cancelled operations never run")
	})

	t.Run("cannot cancel processing", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		res := h.enqueue(t, "a", syncqueue.TypeSale, "k", nil)
		_, err := h.store.AcquireForActor(ctx, "a", uuid.New(), h.clock.Now())
		require.NoError(t, err)

		_, err = h.service.Cancel(ctx, res.OperationID)
		assert.ErrorIs(t, err, syncqueue.ErrNotCancellable)
	})

	t.Run("requeue failed resets retries", func(t *testing.T) {
		t.Parallel()

		handler := &countingHandler{result: func(call int, _ []byte) syncqueue.Result {
			if call == 1 {
				return syncqueue.PermanentFailure("unknown product")
			}
			return syncqueue.Success()
		}}
		h := newHarness(t, func(r *syncqueue.Registry) { _ = r.Register(syncqueue.TypeSale, handler) })
		res := h.enqueue(t, "a", syncqueue.TypeSale, "k", nil)

		_, err := h.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, syncqueue.StatusFailed, h.status(t, res).Status)

		info, err := h.service.Requeue(ctx, res.OperationID)
		require.NoError(t, err)
		assert.Equal(t, syncqueue.StatusPending, info.Status)
		assert.Equal(t, 0, info.RetryCount)
		assert.Empty(t, info.LastError)

		n, err := h.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, syncqueue.StatusCompleted, h.status(t, res).Status)
	})

	t.Run("requeue cancelled", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		res := h.enqueue(t, "a", syncqueue.TypeSale, "k", nil)
		_, err := h.service.Cancel(ctx, res.OperationID)
		require.NoError(t, err)

		info, err := h.service.Requeue(ctx, res.OperationID)
		require.NoError(t, err)
		assert.Equal(t, syncqueue.StatusPending, info.Status)
	})

	t.Run("cannot requeue pending or completed", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		res := h.enqueue(t, "a", syncqueue.TypeSale, "k", nil)
		_, err := h.service.Requeue(ctx, res.OperationID)
		assert.ErrorIs(t, err, syncqueue.ErrNotRequeueable)

		_, err = h.processor.ProcessOnce(ctx)
		require.NoError(t, err)
		_, err = h.service.Requeue(ctx, res.OperationID)
		assert.ErrorIs(t, err, syncqueue.ErrNotRequeueable)
	})

	t.Run("unknown operation", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, registerAll)
		_, err := h.service.Cancel(ctx, uuid.New())
		assert.ErrorIs(t, err, syncqueue.ErrOperationNotFound)
		_, err = h.service.Requeue(ctx, uuid.New())
		assert.ErrorIs(t, err, syncqueue.ErrOperationNotFound)
	})
}

func TestService_Listings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	failing := syncqueue.HandlerFunc(func(context.Context, []byte) syncqueue.Result {
		return syncqueue.PermanentFailure("rejected")
	})
	h := newHarness(t, func(r *syncqueue.Registry) {
		_ = r.Register(syncqueue.TypePayment, failing)
		_ = r.Register(syncqueue.TypeSale, okHandler())
	})

	h.enqueue(t, "a", syncqueue.TypePayment, "k1", nil)
	h.enqueue(t, "b", syncqueue.TypeSale, "k1", nil)

	eligible, err := h.service.ListEligible(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, eligible, 2)

	_, err = h.processor.ProcessOnce(ctx)
	require.NoError(t, err)

	failed, err := h.service.ListFailed(ctx, syncqueue.FailedFilter{})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].ActorID)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "rejected", *failed[0].LastError)
}
