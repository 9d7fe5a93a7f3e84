package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/config"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/database"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/embedding"
	"github.com/saturnino-fabrica-de-software/aerowatch/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	action := flag.String("action", "up", "Action: up, down, version, force, seed, export")
	steps := flag.Int("steps", 0, "Target version (for force action)")
	file := flag.String("file", "", "Embeddings JSON file for seed and export (default EMBEDDINGS_PATH)")
	replace := flag.Bool("replace", false, "Overwrite existing urns when seeding")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := *file
	if path == "" {
		path = cfg.EmbeddingsPath
	}

	switch *action {
	case "up", "down", "version", "force":
		return migrate(ctx, cfg.DatabaseURL, *action, *steps, logger)
	case "seed":
		return seed(ctx, cfg.DatabaseURL, path, *replace, logger)
	case "export":
		return export(ctx, cfg.DatabaseURL, path, logger)
	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force, seed, export)", *action)
	}
}

func migrate(ctx context.Context, dsn, action string, steps int, logger *slog.Logger) error {
	db, err := database.OpenSQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var dbName string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		return fmt.Errorf("failed to resolve database name: %w", err)
	}

	logger.Info("connected to database", slog.String("database", dbName))

	migrator, err := database.NewMigrator(db, dbName, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch action {
	case "up":
		logger.Info("running migrations")
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		logger.Info("rolling back last migration")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("migration rolled back")

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	case "force":
		if steps == 0 {
			return fmt.Errorf("steps flag is required for force action")
		}
		logger.Info("forcing migration version", slog.Int("version", steps))
		if err := migrator.Force(steps); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		logger.Info("migration version forced")
	}

	return nil
}

// seed copies a JSON watch-list into known_faces.
func seed(ctx context.Context, dsn, path string, replace bool, logger *slog.Logger) error {
	faces, err := embedding.NewFileLoader(path).Load(ctx)
	if err != nil {
		return err
	}
	if len(faces) == 0 {
		return fmt.Errorf("no known faces in %s", path)
	}

	if err := database.MigrateUp(ctx, dsn, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(dsn))
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewKnownFaceRepository(pool)
	for i := range faces {
		if replace {
			err = repo.Upsert(ctx, &faces[i])
		} else {
			err = repo.Create(ctx, &faces[i])
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", faces[i].URN, err)
		}
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("watch-list seeded",
		slog.String("file", path),
		slog.Int("written", len(faces)),
		slog.Int("total", total),
	)
	return nil
}

// export writes known_faces to a JSON file the file source can load.
func export(ctx context.Context, dsn, path string, logger *slog.Logger) error {
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(dsn))
	if err != nil {
		return err
	}
	defer pool.Close()

	faces, err := repository.NewKnownFaceRepository(pool).ListAll(ctx)
	if err != nil {
		return err
	}

	if err := embedding.WriteFile(path, faces); err != nil {
		return err
	}
	logger.Info("watch-list exported", slog.String("file", path), slog.Int("known_faces", len(faces)))
	return nil
}
