package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/logger"
	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/server"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load env if it exists
			_ = godotenv.Load()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := logger.New(cfg.Server.Environment, cfg.Server.Debug)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync(log) }()

			redis, err := storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() { _ = redis.Close() }()
			log.Info("connected to redis", zap.String("addr", cfg.Redis.GetRedisAddr()))

			db, err := storage.NewPostgres(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if migrate {
				if err := db.AutoMigrate(); err != nil {
					return fmt.Errorf("migrate database: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, log, redis, db, metrics.New())
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				addr := ":" + cfg.Server.Port
				if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Info("server exited")
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "run database migrations before serving")
	return cmd
}
