package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll Telegram, run reminders and serve health endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			observability.InitMetrics()
			shutdownTracer, err := observability.SetupTracing(cfg)
			if err != nil {
				slog.Error("failed to setup tracing", slog.Any("error", err))
			}
			defer func() {
				if shutdownTracer != nil {
					_ = shutdownTracer(context.Background())
				}
			}()

			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           a.Handler,
				ReadTimeout:       cfg.HTTPReadTimeout,
				WriteTimeout:      cfg.HTTPWriteTimeout,
				IdleTimeout:       cfg.HTTPIdleTimeout,
				ReadHeaderTimeout: 10 * time.Second,
			}
			httpErr := make(chan error, 1)
			go func() {
				slog.Info("http server starting", slog.Int("port", cfg.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					httpErr <- err
				}
			}()
			runDone := make(chan error, 1)
			go func() {
				slog.Info("bot started", slog.String("reminder_store", cfg.ReminderStore), slog.Bool("redis_limiter", cfg.RedisURL != ""))
				runDone <- a.Run(ctx)
			}()

			var runErr error
			select {
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			case runErr = <-httpErr:
				slog.Error("http server failed", slog.Any("error", runErr))
				stop()
			}
			if err := <-runDone; err != nil && runErr == nil {
				runErr = err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			if err := a.Close(shutdownCtx); err != nil {
				slog.Error("close failed", slog.Any("error", err))
			}
			return runErr
		},
	}
}
