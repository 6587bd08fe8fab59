package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/fieldsync/internal/config"
	"github.com/dmitrymomot/fieldsync/pkg/forward"
	"github.com/dmitrymomot/fieldsync/pkg/httpserver"
	"github.com/dmitrymomot/fieldsync/pkg/pg"
	"github.com/dmitrymomot/fieldsync/pkg/redis"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue/pgstore"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue/redislocker"
)

// Backend is the storage a command runs against.
type Backend struct {
	Store syncqueue.Store
	// Locker claims actors across processes. Nil means in-process claims.
	Locker syncqueue.ActorLocker
	Checks []httpserver.Check

	closers []func()
}

// BackendFunc opens a Backend from the configuration.
type BackendFunc func(ctx context.Context, cfg config.App, log *slog.Logger) (*Backend, error)

// Close releases the connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// OnClose registers fn to run on Close.
func (b *Backend) OnClose(fn func()) {
	b.closers = append(b.closers, fn)
}

// OpenBackend connects to PostgreSQL and, when SYNCQUEUE_REDIS_LOCKS is set,
// to Redis for cross-process actor claims.
func OpenBackend(ctx context.Context, cfg config.App, log *slog.Logger) (*Backend, error) {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	b := &Backend{}
	b.OnClose(pool.Close)

	store, err := pgstore.New(pool)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Store = store
	b.Checks = append(b.Checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})

	if cfg.RedisLocks {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.OnClose(func() { _ = client.Close() })
		b.Locker = redislocker.New(client, redislocker.WithTTL(cfg.ActorLockTTL))
		b.Checks = append(b.Checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}

	log.InfoContext(ctx, "storage ready", slog.Bool("redis_locks", cfg.RedisLocks))
	return b, nil
}

// newRegistry registers a forwarding handler for every type listed in
// SYNCQUEUE_ENDPOINTS. Without endpoints the registry is empty, which is
// enough for the admin commands.
func newRegistry(cfg config.App, log *slog.Logger) (*syncqueue.Registry, error) {
	registry := syncqueue.NewRegistry(cfg.Queue.MaxRetries)
	if len(cfg.Forward.Endpoints) == 0 {
		return registry, nil
	}

	fwd, err := forward.New(cfg.Forward, forward.WithLogger(log))
	if err != nil {
		return nil, err
	}
	for typ, h := range fwd.Handlers() {
		if err := registry.Register(typ, h, cfg.Queue.RegisterOptions(typ)...); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
