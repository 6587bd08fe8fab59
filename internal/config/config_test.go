package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/internal/config"
	pkgconfig "github.com/dmitrymomot/fieldsync/pkg/config"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "LOG_LEVEL", "PG_CONN_URL", "SYNCQUEUE_REDIS_LOCKS", "SYNCQUEUE_ACTOR_LOCK_TTL",
		"SYNCQUEUE_HANDLER_TIMEOUT", "SYNCQUEUE_LIVENESS_TIMEOUT", "SYNCQUEUE_MAX_RETRIES_BY_TYPE",
		"SYNCQUEUE_ENDPOINTS", "API_MAX_BATCH_SIZE", "HTTP_ADDR",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	// Keep a developer's .env out of the test.
	t.Chdir(t.TempDir())
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PG_CONN_URL", "postgres://localhost:5432/fieldsync")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "development", cfg.Env)
		assert.Equal(t, ":8080", cfg.HTTP.Addr)
		assert.Equal(t, 500, cfg.API.MaxBatchSize)
		assert.Equal(t, 4, cfg.Queue.Workers)
		assert.Equal(t, 2, cfg.Queue.MaxRetriesByType["payment"])
		assert.False(t, cfg.RedisLocks)
		assert.Equal(t, "syncqueue_schema_migrations", cfg.PG.MigrationsTable)
	})

	t.Run("overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PG_CONN_URL", "postgres://db/fieldsync")
		t.Setenv("HTTP_ADDR", ":9090")
		t.Setenv("SYNCQUEUE_ENDPOINTS", "sale:http://sales.internal/create,payment:http://pay.internal/create")
		t.Setenv("SYNCQUEUE_REDIS_LOCKS", "true")
		t.Setenv("SYNCQUEUE_ACTOR_LOCK_TTL", "2m")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.HTTP.Addr)
		assert.Equal(t, "http://sales.internal/create", cfg.Forward.Endpoints["sale"])
		assert.True(t, cfg.RedisLocks)
		assert.Equal(t, 2*time.Minute, cfg.ActorLockTTL)
	})

	t.Run("missing database url", func(t *testing.T) {
		clearEnv(t)
		_, err := config.Load()
		assert.ErrorIs(t, err, pkgconfig.ErrParsingConfig)
	})

	t.Run("invalid combination", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PG_CONN_URL", "postgres://db/fieldsync")
		t.Setenv("SYNCQUEUE_HANDLER_TIMEOUT", "10m")
		t.Setenv("SYNCQUEUE_LIVENESS_TIMEOUT", "5m")

		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SYNCQUEUE_LIVENESS_TIMEOUT")
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() config.App {
		return config.App{
			Env:          "production",
			API:          config.API{MaxBatchSize: 10},
			ActorLockTTL: time.Minute,
			Queue:        syncqueue.DefaultConfig(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.App)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.App) {}},
		{name: "unknown log level", mutate: func(c *config.App) { c.LogLevel = "loud" }, wantErr: "LOG_LEVEL"},
		{name: "batch size", mutate: func(c *config.App) { c.API.MaxBatchSize = 0 }, wantErr: "API_MAX_BATCH_SIZE"},
		{name: "lock ttl too short", mutate: func(c *config.App) {
			c.RedisLocks = true
			c.ActorLockTTL = 10 * time.Second
		}, wantErr: "SYNCQUEUE_ACTOR_LOCK_TTL"},
		{name: "lock ttl ignored without redis", mutate: func(c *config.App) { c.ActorLockTTL = time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoggerOptions(t *testing.T) {
	t.Parallel()

	cfg := config.App{Env: "production", Name: "fieldsync"}
	assert.Len(t, cfg.LoggerOptions(), 1)

	cfg.LogLevel = "debug"
	assert.Len(t, cfg.LoggerOptions(), 2)
}
