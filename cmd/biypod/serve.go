package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/httpserver"
	"github.com/Lleewss/Biypod-merchant-v2/svc/api"
)

func newServeCmd(envFiles *[]string) *cobra.Command {
	var noSweeper bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the downgrade sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			router := api.NewRouter(api.Options{
				Config:        cfg.API,
				Billing:       a.billing,
				Subscriptions: a.store,
				Gating:        a.gating,
				Metrics:       promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg}),
				Checks:        a.checks(),
				Logger:        log,
			})
			srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx, router) })
			if !noSweeper {
				sw := a.sweeper()
				g.Go(func() error { return sw.Run(gctx) })
			}

			log.InfoContext(ctx, "biypod started", "version", Version)
			err = g.Wait()
			log.Info("biypod stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&noSweeper, "no-sweeper", false, "do not run the downgrade sweeper in this process")
	return cmd
}
