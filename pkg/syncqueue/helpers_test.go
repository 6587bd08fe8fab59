package syncqueue_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

var epoch = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock shared by service, processor and sweeper.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// noJitter is a deterministic schedule: 1s, 2s, 4s ... capped at 1m.
var noJitter = syncqueue.Backoff{Base: time.Second, Cap: time.Minute}

type harness struct {
	clock     *fakeClock
	store     *syncqueue.MemoryStorage
	registry  *syncqueue.Registry
	service   *syncqueue.Service
	processor *syncqueue.Processor
	sweeper   *syncqueue.Sweeper
	bus       *syncqueue.EventBus
}

func newHarness(t *testing.T, register func(r *syncqueue.Registry), procOpts ...syncqueue.ProcessorOption) *harness {
	t.Helper()

	h := &harness{
		clock:    newFakeClock(),
		store:    syncqueue.NewMemoryStorage(),
		registry: syncqueue.NewRegistry(3),
		bus:      syncqueue.NewEventBus(256),
	}
	t.Cleanup(func() { _ = h.bus.Close() })
	register(h.registry)

	var err error
	h.service, err = syncqueue.NewService(h.store, h.registry,
		syncqueue.WithServiceClock(h.clock.Now),
		syncqueue.WithServiceEvents(h.bus),
		syncqueue.WithServiceLogger(logger.Discard()),
	)
	require.NoError(t, err)

	opts := append([]syncqueue.ProcessorOption{
		syncqueue.WithProcessorClock(h.clock.Now),
		syncqueue.WithBackoff(noJitter),
		syncqueue.WithProcessorEvents(h.bus),
		syncqueue.WithProcessorLogger(logger.Discard()),
		syncqueue.WithHandlerTimeout(time.Second),
	}, procOpts...)
	h.processor, err = syncqueue.NewProcessor(h.store, h.registry, opts...)
	require.NoError(t, err)

	h.sweeper, err = syncqueue.NewSweeper(h.store, noJitter,
		syncqueue.WithSweeperClock(h.clock.Now),
		syncqueue.WithLivenessTimeout(5*time.Minute),
		syncqueue.WithSweeperEvents(h.bus),
		syncqueue.WithSweeperLogger(logger.Discard()),
	)
	require.NoError(t, err)

	return h
}

func (h *harness) enqueue(t *testing.T, actor string, typ syncqueue.OperationType, key string, payload any) syncqueue.EnqueueResult {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	res, err := h.service.Enqueue(context.Background(), syncqueue.EnqueueRequest{
		ActorID:        actor,
		OperationType:  typ,
		Payload:        raw,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) status(t *testing.T, res syncqueue.EnqueueResult) syncqueue.StatusInfo {
	t.Helper()

	info, err := h.service.GetStatus(context.Background(), res.OperationID)
	require.NoError(t, err)
	return info
}

// countingHandler records every call and answers with result.
type countingHandler struct {
	mu     sync.Mutex
	calls  int
	result func(call int, payload []byte) syncqueue.Result
}

func (c *countingHandler) Handle(_ context.Context, payload []byte) syncqueue.Result {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.result == nil {
		return syncqueue.Success()
	}
	return c.result(call, payload)
}

func (c *countingHandler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
