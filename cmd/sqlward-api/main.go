package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlward/sqlward/internal/api"
	"github.com/sqlward/sqlward/internal/auth"
	"github.com/sqlward/sqlward/internal/catalog"
	catalogpostgres "github.com/sqlward/sqlward/internal/catalog/postgres"
	"github.com/sqlward/sqlward/internal/config"
	"github.com/sqlward/sqlward/internal/llm"
	"github.com/sqlward/sqlward/internal/observability"
	"github.com/sqlward/sqlward/internal/pipeline"
	"github.com/sqlward/sqlward/internal/prompt"
	"github.com/sqlward/sqlward/internal/query"
	duckdbengine "github.com/sqlward/sqlward/internal/query/duckdb"
	s3store "github.com/sqlward/sqlward/internal/storage/s3"
	"github.com/sqlward/sqlward/internal/validate"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlward-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
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

	// The descriptor is loaded once and shared read-only across requests.
	descriptor, err := catalogRepo.Describe(context.Background())
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			logger.Error("catalog is empty, run sqlward-seed first")
		} else {
			logger.Error("failed to load schema catalog", slog.Any("error", err))
		}
		os.Exit(1)
	}

	objectStore, err := s3store.New(context.Background(), s3store.Config{
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

	client, err := newCompletionClient(cfg)
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	engine := duckdbengine.NewEngine(objectStore)
	executor := query.NewExecutor(engine, cfg.Pipeline.ExecutionTimeout, cfg.Pipeline.RowCap)
	validator := validate.New(&descriptor, cfg.Pipeline.MaxResults)
	builder := prompt.NewBuilder(cfg.Pipeline.MaxResults, cfg.Pipeline.FewShotWindow)

	controller := pipeline.New(pipeline.Config{
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		BackoffBase:       cfg.Pipeline.BackoffBase,
		BackoffCap:        cfg.Pipeline.BackoffCap,
		CompletionTimeout: cfg.Pipeline.CompletionTimeout,
	}, pipeline.Deps{
		Client:     client,
		Builder:    builder,
		Descriptor: &descriptor,
		Validator:  validator,
		Executor:   executor,
		Files:      catalogRepo,
		Logger:     observability.Component(logger, "pipeline"),
	})

	deps := api.Dependencies{
		Logger:     observability.Component(logger, "api"),
		Pipeline:   controller,
		Descriptor: &descriptor,
		Validator:  validator,
		Executor:   executor,
		Files:      catalogRepo,
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
			api.CheckCompletionConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		keyValidator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(observability.Component(logger, "auth"), keyValidator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func newCompletionClient(cfg config.Config) (llm.Client, error) {
	switch cfg.AI.Provider {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		})
	case "ollama":
		return llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.AI.Provider)
	}
}
