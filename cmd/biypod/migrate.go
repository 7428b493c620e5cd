package main

import (
	"github.com/spf13/cobra"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/config"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/pg"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

func newMigrateCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg struct {
				Log logger.Config
				PG  pg.Config
			}
			if err := config.Load(&cfg, config.WithEnvFiles(*envFiles...)); err != nil {
				return err
			}
			log := logger.New(logger.WithConfig(cfg.Log))

			pool, err := pg.Connect(cmd.Context(), cfg.PG)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pg.Migrate(cmd.Context(), pool, subscription.Migrations, "migrations", cfg.PG, log); err != nil {
				return err
			}
			log.InfoContext(cmd.Context(), "migrations applied")
			return nil
		},
	}
}
