package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/vanshika/txscreen/internal/app"
	"github.com/vanshika/txscreen/internal/auth"
	"github.com/vanshika/txscreen/internal/logging"
	"github.com/vanshika/txscreen/internal/server"
	"github.com/vanshika/txscreen/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the screening HTTP API and the secondary reviewer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			logger.Warn("closing store failed", "error", err)
		}
	}()

	screener, err := app.NewScreener(cfg.Screening, logger)
	if err != nil {
		return fmt.Errorf("build screener: %w", err)
	}
	policy, err := service.ParseSanctionsPolicy(cfg.Screening.Policy)
	if err != nil {
		return err
	}
	notifier, err := app.NewNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	reviewCtx, stopReviews := context.WithCancel(context.Background())
	reviewer := app.NewReviewer(cfg.Review, store, notifier, logger)
	reviewer.Start(reviewCtx)
	defer func() {
		stopReviews()
		reviewer.Wait()
	}()

	svc := service.NewScreeningService(store, app.NewEvaluator(cfg.Rules), screener, service.Options{
		Policy:  policy,
		Reviews: reviewer,
		Logger:  logger,
	})

	deps := server.RouterDependencies{
		Health:           server.StoreHealthService{Store: store},
		API:              server.NewAPIHandlers(logger, svc),
		AllowedOrigins:   app.ParseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	}
	if cfg.Auth.JWTSecret != "" {
		authenticator, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
		deps.Auth = authenticator
	} else {
		logger.Warn("auth.jwt_secret is empty; API is unauthenticated")
	}
	if cfg.RateLimit.RPS > 0 {
		deps.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	srv := server.New(logger, cfg.HTTP, server.NewRouter(logger, deps))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
