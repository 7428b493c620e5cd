// Package pg bootstraps the PostgreSQL pool and schema.
//
// Connect opens a pgx pool with retries, Migrate runs goose migrations from an
// embedded filesystem over the same pool, and Healthcheck exposes a ping probe.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, subscription.Migrations, "migrations", cfg, log); err != nil {
//		return err
//	}
package pg
