package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ams-cubing/public-calendar/internal/api"
	"github.com/ams-cubing/public-calendar/internal/config"
	"github.com/ams-cubing/public-calendar/internal/metrics"
	"github.com/ams-cubing/public-calendar/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	host string
	port int
}

func newServeCommand(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AMS calendar HTTP server",
		Long: `Start the AMS calendar HTTP server and the notification workers.

The server will:
- Load configuration from environment variables (and .env when present)
- Connect to PostgreSQL and start the River job workers
- Serve the public calendar, WCA sign-in and the panel API
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug --log-format console`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), global, flags)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context, global *globalFlags, flags *serveFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if flags.host != "" {
		cfg.Server.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting AMS calendar server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	dbCollector := metrics.NewDBCollector(pool)
	collectorCtx, collectorCancel := context.WithCancel(ctx)
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	router, err := api.NewRouter(cfg, logger, pool, api.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	})
	if err != nil {
		return fmt.Errorf("router init: %w", err)
	}

	riverCtx, riverCancel := context.WithCancel(ctx)
	defer riverCancel()
	if err := router.RiverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("river workers failed to start: %w", err)
	}
	logger.Info().Msg("notification workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := router.RiverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
		} else {
			logger.Info().Msg("notification workers stopped")
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	return gracefulShutdown(server, serveErr, logger)
}

// openPool connects with the configured pool limits and pings once.
func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if db.MaxConnections > 0 {
		poolCfg.MaxConns = int32(db.MaxConnections)
	}
	if db.MaxIdle > 0 && int32(db.MaxIdle) <= poolCfg.MaxConns {
		poolCfg.MinConns = int32(db.MaxIdle)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func gracefulShutdown(server *http.Server, serveErr <-chan error, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-stop:
	}
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
