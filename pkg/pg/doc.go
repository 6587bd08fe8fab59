// Package pg bootstraps PostgreSQL access on top of pgx/v5: a retrying
// connection pool, goose migrations read from an embedded filesystem, a
// health probe and helpers that classify *pgconn.PgError codes.
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, cfg.MigrationsTable, slog.Default()); err != nil {
//		return err
//	}
package pg
