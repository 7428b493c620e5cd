// Package httpserver runs the app's HTTP listener with graceful shutdown.
//
// Run blocks until the context is cancelled, so it composes with errgroup
// next to background workers:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Health builds liveness and readiness probe handlers.
package httpserver
