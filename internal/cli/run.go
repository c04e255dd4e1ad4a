package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/relsync/internal/api"
	"github.com/mcoot/relsync/internal/engine"
	"github.com/mcoot/relsync/internal/factory"
	"github.com/mcoot/relsync/internal/model"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization daemon",
		Long: `Run the engine: log in with the stored token, apply pushed events,
reconcile on every (re)connect and every --reconcile-interval, and serve
the state API on --host:--port until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, newLogger(cmd))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Listen.Host, "host", cfg.Listen.Host, "API listen host (env: RELSYNC_HOST)")
	flags.IntVar(&cfg.Listen.Port, "port", cfg.Listen.Port, "API listen port (env: RELSYNC_PORT)")
	flags.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "Period between reconciliations, 0 to reconcile only on connect (env: RELSYNC_RECONCILE_INTERVAL)")
	flags.IntVar(&cfg.FetchConcurrency, "fetch-concurrency", cfg.FetchConcurrency, "Concurrent profile fetches per reconciliation")

	return cmd
}

func runDaemon(ctx context.Context, logger *slog.Logger) error {
	fc := cfg.FactoryConfig()
	fc.Logger = logger
	app, err := factory.New(fc)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() { _ = app.Close() }()

	if err := app.Engine.Init(ctx); err != nil {
		if !errors.Is(err, model.ErrNotAuthenticated) {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		logger.Warn("login failed, continuing unauthenticated", slog.String("error", err.Error()))
	}
	app.Engine.Bind(app.Stream)

	go app.Hub.Run()
	defer app.Hub.Close()

	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = cfg.Listen.Host
	serverCfg.Port = cfg.Listen.Port
	server := api.NewServer(api.NewRouter(api.RouterConfig{
		Logger: logger,
		Engine: app.Engine,
		Hub:    app.Hub,
		APIKey: cfg.APIKey,
	}), serverCfg, logger)
	if err := server.Listen(); err != nil {
		return err
	}

	runCfg := engine.DefaultRunConfig()
	runCfg.ReconcileInterval = cfg.ReconcileInterval

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Broadcaster.Run(ctx, app.Engine)
		return nil
	})
	g.Go(func() error {
		return app.Engine.Run(ctx, app.Stream, runCfg, app.Random)
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	logger.Info("daemon started",
		slog.String("addr", server.Addr()),
		slog.String("remote", cfg.RemoteURL))

	err = g.Wait()
	logger.Info("daemon stopped")
	return err
}
