package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/fieldsync/pkg/httpserver"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
	"github.com/dmitrymomot/fieldsync/svc/syncapi"
)

// ServeOptions holds the flags of the serve command.
type ServeOptions struct {
	*RootOptions
	APIOnly bool
}

func newServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the queue workers and the liveness sweep",
		Long: `Run the HTTP API together with the queue processor and the liveness sweep
until SIGINT or SIGTERM. In-flight operations finish before the process exits.

Example:
  fieldsync serve --env-file .env.production
  fieldsync serve --api-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.APIOnly, "api-only", false, "accept operations without processing them")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log := opts.cfg, opts.log

	registry, err := newRegistry(cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid forwarding configuration", err)
	}
	if !opts.APIOnly && registry.Len() == 0 {
		return NewExitError(ExitCommandError, "SYNCQUEUE_ENDPOINTS must map at least one operation type")
	}

	backend, err := opts.Backend(ctx, cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "open storage", err)
	}
	defer backend.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := syncqueue.NewMetrics(promReg)
	bus := syncqueue.NewEventBus(cfg.Queue.EventBuffer)

	service, err := syncqueue.NewService(backend.Store, registry,
		syncqueue.WithStrictPayloadMatch(cfg.Queue.StrictPayload),
		syncqueue.WithServiceEvents(bus),
		syncqueue.WithServiceMetrics(metrics),
		syncqueue.WithServiceLogger(log),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "create queue service", err)
	}

	api, err := syncapi.New(service,
		syncapi.WithLogger(log),
		syncapi.WithEventBus(bus),
		syncapi.WithMaxBatchSize(cfg.API.MaxBatchSize),
		syncapi.WithMetricsHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})),
		syncapi.WithReadinessChecks(cfg.API.ProbeTimeout, backend.Checks...),
		syncapi.WithPingInterval(cfg.API.PingInterval),
		syncapi.WithAllowedOrigins(cfg.API.AllowedOrigins...),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "create api", err)
	}

	serverOpts := []httpserver.Option{httpserver.WithLogger(log)}
	if opts.onListen != nil {
		serverOpts = append(serverOpts, httpserver.WithOnListen(opts.onListen))
	}
	server := httpserver.NewFromConfig(cfg.HTTP, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, api.Router()) })

	if !opts.APIOnly {
		processor, err := syncqueue.NewProcessor(backend.Store, registry,
			syncqueue.WithWorkers(cfg.Queue.Workers),
			syncqueue.WithPollInterval(cfg.Queue.PollInterval),
			syncqueue.WithBatchSize(cfg.Queue.BatchSize),
			syncqueue.WithHandlerTimeout(cfg.Queue.HandlerTimeout),
			syncqueue.WithBackoff(cfg.Queue.Backoff()),
			syncqueue.WithActorLocker(backend.Locker),
			syncqueue.WithProcessorEvents(bus),
			syncqueue.WithProcessorMetrics(metrics),
			syncqueue.WithProcessorLogger(log),
		)
		if err != nil {
			return WrapExitError(ExitCommandError, "create processor", err)
		}
		sweeper, err := syncqueue.NewSweeper(backend.Store, cfg.Queue.Backoff(),
			syncqueue.WithSweepInterval(cfg.Queue.SweepInterval),
			syncqueue.WithLivenessTimeout(cfg.Queue.LivenessTimeout),
			syncqueue.WithSweeperEvents(bus),
			syncqueue.WithSweeperMetrics(metrics),
			syncqueue.WithSweeperLogger(log),
		)
		if err != nil {
			return WrapExitError(ExitCommandError, "create sweeper", err)
		}

		g.Go(processor.Run(gctx))
		g.Go(sweeper.Run(gctx))
	}

	// Hijacked event streams are not tracked by the HTTP server; closing the
	// bus ends them.
	g.Go(func() error {
		<-gctx.Done()
		return bus.Close()
	})

	log.InfoContext(ctx, "fieldsync started",
		slog.String("addr", cfg.HTTP.Addr),
		slog.Bool("api_only", opts.APIOnly),
		slog.Any("operation_types", registry.Types()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(ctx, "fieldsync stopped with error", logger.Error(err))
		return WrapExitError(ExitFailure, "serve", err)
	}

	log.Info("fieldsync stopped")
	return nil
}
