package redislocker_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue/redislocker"
)

// newClient connects to the server named by REDIS_URL or skips the test.
func newClient(t *testing.T) *goredis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestLocker_Key(t *testing.T) {
	t.Parallel()

	l := redislocker.New(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}), redislocker.WithPrefix("test:"))
	assert.Equal(t, "test:merchant-1", l.Key("merchant-1"))

	l = redislocker.New(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}))
	assert.Equal(t, "syncqueue:actor:merchant-1", l.Key("merchant-1"))
}

func TestLocker_TryLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newClient(t)
	l := redislocker.New(client,
		redislocker.WithPrefix("syncqueue:test:"+uuid.NewString()+":"),
		redislocker.WithTTL(time.Minute))

	lock, err := l.TryLock(ctx, "a")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "a")
	assert.ErrorIs(t, err, syncqueue.ErrActorBusy)

	other, err := l.TryLock(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx), "releasing twice is harmless")

	again, err := l.TryLock(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_WorksWithProcessor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newClient(t)
	locker := redislocker.New(client, redislocker.WithPrefix("syncqueue:test:"+uuid.NewString()+":"))

	store := syncqueue.NewMemoryStorage()
	registry := syncqueue.NewRegistry(3)
	require.NoError(t, registry.Register(syncqueue.TypeSale, syncqueue.HandlerFunc(
		func(context.Context, []byte) syncqueue.Result { return syncqueue.Success() })))

	svc, err := syncqueue.NewService(store, registry)
	require.NoError(t, err)
	res, err := svc.Enqueue(ctx, syncqueue.EnqueueRequest{
		ActorID: "a", OperationType: syncqueue.TypeSale, IdempotencyKey: "k", Payload: []byte(`{}`),
	})
	require.NoError(t, err)

	proc, err := syncqueue.NewProcessor(store, registry, syncqueue.WithActorLocker(locker))
	require.NoError(t, err)
	n, err := proc.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := svc.GetStatus(ctx, res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusCompleted, info.Status)
}
