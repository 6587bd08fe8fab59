// Package httpserver wraps net/http with context driven graceful shutdown,
// configurable timeouts and health-check handlers.
//
// Run blocks until its context is cancelled, then shuts the server down with
// a bounded deadline, which makes it a natural errgroup member:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// LivenessHandler and ReadinessHandler serve probe endpoints. Readiness runs
// named checks (database ping, Redis ping) and reports each one:
//
//	r.Get("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//	))
//
// Listen errors are wrapped with ErrStart and shutdown errors with
// ErrShutdown; use errors.Is to tell them apart.
package httpserver
