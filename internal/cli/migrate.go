package cli

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/fieldsync/pkg/pg"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue/pgstore"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sync_operations schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := pg.Migrate(ctx, pool, pgstore.Migrations, opts.cfg.PG.MigrationsTable, opts.log); err != nil {
					return WrapExitError(ExitFailure, "migrate up", err)
				}
				return opts.printSchema(ctx, cmd, pool)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := pg.Rollback(ctx, pool, pgstore.Migrations, opts.cfg.PG.MigrationsTable, opts.log); err != nil {
					return WrapExitError(ExitFailure, "migrate down", err)
				}
				return opts.printSchema(ctx, cmd, pool)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				return opts.printSchema(ctx, cmd, pool)
			})
		},
	})

	return cmd
}

func (o *RootOptions) withPool(ctx context.Context, fn func(context.Context, *pgxpool.Pool) error) error {
	pool, err := pg.Connect(ctx, o.cfg.PG)
	if err != nil {
		return WrapExitError(ExitCommandError, "connect postgres", err)
	}
	defer pool.Close()
	return fn(ctx, pool)
}

type schemaVersion struct {
	Table   string `json:"table"`
	Version int64  `json:"version"`
}

func (o *RootOptions) printSchema(ctx context.Context, cmd *cobra.Command, pool *pgxpool.Pool) error {
	version, err := pg.MigrationStatus(ctx, pool, pgstore.Migrations, o.cfg.PG.MigrationsTable, o.log)
	if err != nil {
		return WrapExitError(ExitFailure, "migration status", err)
	}
	v := schemaVersion{Table: o.cfg.PG.MigrationsTable, Version: version}
	return o.printer(cmd).print(v, func(w io.Writer) {
		row(w, "TABLE", "VERSION")
		row(w, v.Table, v.Version)
	})
}
