package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/renderyard/backend/internal/auth"
	"github.com/renderyard/backend/internal/config"
	"github.com/renderyard/backend/internal/credits"
	"github.com/renderyard/backend/internal/generation"
	"github.com/renderyard/backend/internal/middleware"
	"github.com/renderyard/backend/internal/outbox"
	"github.com/renderyard/backend/internal/provider"
	"github.com/renderyard/backend/internal/router"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Credits
	creditsRepo := credits.NewRepository(pool)
	creditsSvc := credits.NewService(creditsRepo)
	creditsHandler := credits.NewHandler(creditsSvc, logger)

	// Auth (registration applies the welcome grant in the same transaction
	// as the user insert)
	authRepo := auth.NewRepository(pool, creditsRepo)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret, cfg.WelcomeCredits)
	authHandler := auth.NewHandler(authSvc, logger)

	// Providers
	evolink := provider.NewEvolinkClient(cfg.Evolink, nil, logger)
	replicate := provider.NewReplicateClient(cfg.Replicate, nil, logger)

	// Generation store + outbox worker (retries record inserts that fail
	// after a debit)
	genRepo := generation.NewRepository(pool)

	workers := river.NewWorkers()
	river.AddWorker(workers, outbox.NewSaveGenerationWorker(genRepo, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	enqueueSave := func(ctx context.Context, args outbox.SaveGenerationArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}

	genSvc := generation.NewService(genRepo, creditsSvc, evolink, replicate, enqueueSave, cfg.GenerationCost, logger)
	genHandler := generation.NewHandler(genSvc, cfg.GenerationCost, logger)

	requireSession := middleware.SessionAuth(authSvc, authRepo)
	optionalSession := middleware.OptionalSession(authSvc, authRepo)

	apiRouter := router.New(authHandler, genHandler, creditsHandler, requireSession, optionalSession)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://app.renderyard.ai"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes outbox jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
