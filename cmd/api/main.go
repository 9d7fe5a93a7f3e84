package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/api"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/camera"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/config"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/database"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/embedding"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/face"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/matcher"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting Aerowatch API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.ProviderType),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The service keeps running with an empty watch-list if loading fails
	store := loadStore(ctx, cfg, logger)
	logger.Info("watch-list loaded",
		slog.String("source", cfg.EmbeddingsSource),
		slog.Int("known_faces", store.Len()),
		slog.Int("dimension", store.Dimension()),
	)

	encoder, err := face.NewFaceEncoder(cfg)
	if err != nil {
		return fmt.Errorf("failed to create face encoder: %w", err)
	}

	m := matcher.New(encoder, store, logger, matcher.WithMaxWidth(cfg.DetectMaxWidth))

	logger.Info("opening cameras", slog.Any("cameras", cfg.Cameras.IDs()))
	registry := camera.NewRegistry(ctx, cfg.Cameras, camera.NewDefaultOpener(), logger,
		camera.WithMaxErrors(cfg.MaxConsecutiveErrors),
	)
	defer registry.StopAll()

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Matcher:  m,
		Encoder:  encoder,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(10 * time.Second); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func loadStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *embedding.Store {
	var (
		store *embedding.Store
		err   error
	)

	switch cfg.EmbeddingsSource {
	case config.EmbeddingsSourcePostgres:
		store, err = loadFromPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		store, err = embedding.Load(ctx, embedding.NewFileLoader(cfg.EmbeddingsPath))
	}

	if err != nil {
		logger.Error("failed to load watch-list, starting with none", slog.Any("error", err))
		return embedding.Empty()
	}
	return store
}

// loadFromPostgres migrates the schema and reads every known face once.
// The pool is only needed for that read.
func loadFromPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*embedding.Store, error) {
	if err := database.MigrateUp(ctx, dsn, logger); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(dsn))
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return embedding.Load(ctx, repository.NewKnownFaceRepository(pool))
}
