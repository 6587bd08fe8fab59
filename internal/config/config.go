// Package config assembles the settings of the fieldsync binary from the
// Config types of the packages it wires.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/fieldsync/pkg/config"
	"github.com/dmitrymomot/fieldsync/pkg/forward"
	"github.com/dmitrymomot/fieldsync/pkg/httpserver"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/pg"
	"github.com/dmitrymomot/fieldsync/pkg/redis"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// App is the full configuration of a fieldsync process.
type App struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"fieldsync"`
	LogLevel string `env:"LOG_LEVEL"`

	HTTP httpserver.Config
	API  API
	PG   pg.Config

	Redis        redis.Config
	RedisLocks   bool          `env:"SYNCQUEUE_REDIS_LOCKS" envDefault:"false"`
	ActorLockTTL time.Duration `env:"SYNCQUEUE_ACTOR_LOCK_TTL" envDefault:"10m"`

	Queue   syncqueue.Config
	Forward forward.Config
}

// API holds the settings of the HTTP surface.
type API struct {
	MaxBatchSize   int           `env:"API_MAX_BATCH_SIZE" envDefault:"500"`
	AllowedOrigins []string      `env:"API_ALLOWED_ORIGINS"`
	PingInterval   time.Duration `env:"API_WS_PING_INTERVAL" envDefault:"30s"`
	ProbeTimeout   time.Duration `env:"API_PROBE_TIMEOUT" envDefault:"2s"`
}

// Load reads the given .env files (the default .env when none is named),
// parses the environment and validates the result.
func Load(envFiles ...string) (App, error) {
	var cfg App
	if err := config.LoadEnv(envFiles...); err != nil {
		return cfg, err
	}
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c App) Validate() error {
	errs := []error{c.Queue.Validate()}
	if c.LogLevel != "" {
		if _, ok := logger.ParseLevel(c.LogLevel); !ok {
			errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
		}
	}
	if c.API.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("API_MAX_BATCH_SIZE must be positive"))
	}
	// An actor claim must outlive the attempt it guards.
	if c.RedisLocks && c.ActorLockTTL <= c.Queue.HandlerTimeout {
		errs = append(errs, fmt.Errorf("SYNCQUEUE_ACTOR_LOCK_TTL (%s) must exceed SYNCQUEUE_HANDLER_TIMEOUT (%s)",
			c.ActorLockTTL, c.Queue.HandlerTimeout))
	}
	return errors.Join(errs...)
}

// LoggerOptions returns the logger preset of the environment, with LOG_LEVEL
// applied on top.
func (c App) LoggerOptions() []logger.Option {
	opts := []logger.Option{logger.WithEnvironment(c.Env, c.Name)}
	if c.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(c.LogLevel))
	}
	return opts
}
