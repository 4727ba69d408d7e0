package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	catalogpostgres "github.com/sqlward/sqlward/internal/catalog/postgres"
	"github.com/sqlward/sqlward/internal/config"
	"github.com/sqlward/sqlward/internal/demo/seeder"
	"github.com/sqlward/sqlward/internal/observability"
	s3store "github.com/sqlward/sqlward/internal/storage/s3"
)

func main() {
	dataset := flag.String("dataset", "clinic", "dataset name used as the object path root")
	patients := flag.Int("patients", 200, "number of patients to generate")
	seed := flag.Int64("seed", 1, "random seed, same seed gives identical data")
	reset := flag.Bool("reset", false, "delete the dataset's objects before seeding")
	flag.Parse()

	cfg, err := config.LoadFromEnv("sqlward-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx := context.Background()
	catalogDB, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	if err := catalogRepo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure catalog schema", slog.Any("error", err))
		os.Exit(1)
	}

	objectStore, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	s := seeder.New(seeder.Config{
		Dataset:  *dataset,
		Patients: *patients,
		Seed:     *seed,
	}, objectStore, catalogRepo)

	if *reset {
		if err := s.Reset(ctx); err != nil {
			logger.Error("reset failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("previous dataset objects removed", slog.String("dataset", *dataset))
	}

	if err := s.Seed(ctx); err != nil {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo dataset seeded",
		slog.String("dataset", *dataset),
		slog.Int("patients", *patients),
	)
}
