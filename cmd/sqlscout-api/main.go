package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlscout/sqlscout/internal/api"
	"github.com/sqlscout/sqlscout/internal/ask"
	"github.com/sqlscout/sqlscout/internal/auth"
	"github.com/sqlscout/sqlscout/internal/config"
	"github.com/sqlscout/sqlscout/internal/llm"
	"github.com/sqlscout/sqlscout/internal/nouns"
	"github.com/sqlscout/sqlscout/internal/observability"
	"github.com/sqlscout/sqlscout/internal/query/dbsql"
	"github.com/sqlscout/sqlscout/internal/schema"
	"github.com/sqlscout/sqlscout/internal/selector"
	"github.com/sqlscout/sqlscout/internal/sqlgen"
	"github.com/sqlscout/sqlscout/internal/storage"
	s3store "github.com/sqlscout/sqlscout/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlscout-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	warehouseDB, err := dbsql.Open(context.Background(), dbsql.DBConfig{
		Driver:          cfg.Warehouse.Driver,
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = warehouseDB.Close() }()

	engine := dbsql.NewEngine(warehouseDB)
	inspector := schema.NewInspector(warehouseDB)
	contexts := &schema.ContextBuilder{
		Inspector:  inspector,
		Engine:     engine,
		SampleRows: cfg.Selector.SampleRows,
	}

	deps := api.Dependencies{
		Logger:      logger,
		Schema:      inspector,
		QueryEngine: engine,
		RowLimit:    cfg.Warehouse.RowLimit,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouseDSN(cfg),
			api.CheckAICredentials(cfg),
		),
		DependencyTimeout: time.Second,
	}

	if cfg.AI.APIKey == "" {
		logger.Warn("ai api key not configured, question answering disabled")
	} else {
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			ChatModel:   cfg.AI.ChatModel,
			EmbedModel:  cfg.AI.EmbedModel,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize ai client", slog.Any("error", err))
			os.Exit(1)
		}

		tableSelector := &selector.Selector{
			Chat:                      client,
			MaxTablesWithoutSelection: cfg.Selector.MaxTablesWithoutSelection,
			Categories:                cfg.Selector.Categories,
			Logger:                    logger,
		}
		generator := &sqlgen.Generator{Chat: client, Dialect: dialectForDriver(cfg.Warehouse.Driver)}

		var nounService *nouns.Service
		if len(cfg.Nouns.Columns) > 0 {
			nounService, err = buildNounService(cfg, engine, client, logger)
			if err != nil {
				logger.Error("failed to initialize noun index", slog.Any("error", err))
				os.Exit(1)
			}
			defer func() { _ = nounService.Index.Close() }()

			restoreCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			restored, err := nounService.Restore(restoreCtx)
			cancel()
			if err != nil {
				logger.Warn("noun snapshot restore failed", slog.Any("error", err))
			} else if restored > 0 {
				logger.Info("noun index restored", slog.Int("entries", restored))
			}
		} else {
			logger.Warn("no noun columns configured, value retrieval disabled")
		}

		askService := &ask.Service{
			Lister:        inspector,
			Selector:      tableSelector,
			Contexts:      contexts,
			Generator:     generator,
			Engine:        engine,
			Chat:          client,
			RowLimit:      cfg.Warehouse.RowLimit,
			RepairEnabled: cfg.AI.RepairEnabled,
			AnswerEnabled: cfg.AI.AnswerEnabled,
			Logger:        logger,
		}
		if nounService != nil {
			askService.Nouns = nounService
			deps.Nouns = nounService
		}
		deps.Selector = tableSelector
		deps.Ask = askService
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
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

func buildNounService(cfg config.Config, engine *dbsql.Engine, client *llm.OpenAIClient, logger *slog.Logger) (*nouns.Service, error) {
	columns, err := nouns.ParseColumnRefs(cfg.Nouns.Columns)
	if err != nil {
		return nil, err
	}
	index, err := nouns.OpenIndex(cfg.Nouns.IndexPath, client)
	if err != nil {
		return nil, err
	}

	var store storage.ObjectStore
	if cfg.Snapshot.Enabled {
		s3, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Snapshot.Endpoint,
			Region:           cfg.Snapshot.Region,
			Bucket:           cfg.Snapshot.Bucket,
			AccessKeyID:      cfg.Snapshot.AccessKeyID,
			SecretAccessKey:  cfg.Snapshot.SecretAccessKey,
			UseSSL:           cfg.Snapshot.UseSSL,
			Prefix:           cfg.Snapshot.Prefix,
			AutoCreateBucket: cfg.Snapshot.AutoCreateBucket,
		})
		if err != nil {
			_ = index.Close()
			return nil, err
		}
		store = s3
	}

	return &nouns.Service{
		Extractor:      &nouns.Extractor{Engine: engine, MaxValuesPerColumn: cfg.Nouns.MaxValuesPerColumn},
		Index:          index,
		Store:          store,
		Collection:     cfg.Nouns.Collection,
		Columns:        columns,
		TopK:           cfg.Nouns.TopK,
		MaxSnapshotAge: cfg.Snapshot.MaxAge,
		Logger:         logger,
	}, nil
}

func dialectForDriver(driver string) string {
	switch driver {
	case "pgx":
		return "PostgreSQL"
	case "duckdb":
		return "DuckDB"
	default:
		return "ANSI SQL"
	}
}
