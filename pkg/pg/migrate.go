package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// goose keeps its filesystem, dialect and table in package globals.
var gooseMu sync.Mutex

// Migrate applies every pending migration found at the root of migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, table string, log logger) error {
	return withGoose(ctx, pool, migrations, table, log, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, ".")
	})
}

// Rollback reverts the most recently applied migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, table string, log logger) error {
	return withGoose(ctx, pool, migrations, table, log, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, ".")
	})
}

// MigrationStatus logs the applied state of every migration and returns the
// current schema version.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, table string, log logger) (int64, error) {
	var version int64
	err := withGoose(ctx, pool, migrations, table, log, func(db *sql.DB) error {
		if err := goose.StatusContext(ctx, db, "."); err != nil {
			return err
		}
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}

func withGoose(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, table string, log logger, fn func(db *sql.DB) error) error {
	if migrations == nil {
		return errors.Join(ErrMigrate, ErrNoMigrations)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	// goose speaks database/sql; the wrapper shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}()

	goose.SetLogger(&gooseLogger{log: log})
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if table != "" {
		goose.SetTableName(table)
	}
	if err := goose.SetDialect(string(goose.DialectPostgres)); err != nil {
		return errors.Join(ErrMigrate, err)
	}

	if err := fn(db); err != nil {
		return errors.Join(ErrMigrate, err)
	}
	return nil
}
