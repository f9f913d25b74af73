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

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/api"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/auth"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	backendduckdb "github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend/duckdb"
	backendpg "github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend/postgres"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/config"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/history"
	historypg "github.com/seth2k2/SQL-DATABASE-AGENT/internal/history/postgres"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/objectstore"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/observability"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/session"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/translate"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv("sqlagent-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	var store objectstore.Store
	if cfg.ObjectStore.Enabled {
		s3, err := objectstore.New(ctx, objectstore.Config{
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
		store = s3
	}

	connector := openBackend(ctx, cfg, store, logger)
	defer func() { _ = connector.Close() }()

	var translator translate.Translator
	if cfg.AI.Enabled {
		client, err := translate.NewOpenAIClient(translate.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
			RetryDelay:  cfg.AI.RetryDelay,
		})
		if err != nil {
			logger.Error("failed to initialize translator", slog.Any("error", err))
			os.Exit(1)
		}
		translator = client
	}

	var historyRepo history.Repository
	var pruner api.HistoryPruner
	if cfg.History.DSN != "" {
		historyDB, err := historypg.Open(ctx, historypg.DBConfig{
			DSN:             cfg.History.DSN,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open history db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = historyDB.Close() }()

		repo := historypg.NewRepository(historyDB)
		historyRepo = repo

		archiver := &history.Archiver{
			Repo:   repo,
			Logger: logger,
			Config: history.ArchiverConfig{
				Retention:     cfg.History.Retention,
				PruneInterval: cfg.History.PruneInterval,
				PruneLimit:    cfg.History.PruneLimit,
				ArchivePrefix: cfg.History.ArchivePrefix,
			},
		}
		if cfg.History.ArchiveEnabled {
			archiver.Store = store
		}
		pruner = archiver
	}

	sess, err := session.New(session.Deps{
		Connector:            connector,
		Translator:           translator,
		History:              historyRepo,
		Logger:               logger,
		PrincipalFromContext: auth.PrincipalFromContext,
	}, session.Options{
		MaxRows:         cfg.Query.MaxRows,
		QueryTimeout:    cfg.Query.Timeout,
		AllowMutation:   cfg.Query.AllowMutation,
		TranslateRounds: cfg.Session.TranslateRounds,
		MaxTables:       cfg.Schema.MaxTables,
		MaxColumns:      cfg.Schema.MaxColumnsPerTable,
	})
	if err != nil {
		logger.Error("failed to build session", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:           logger,
		Session:          sess,
		History:          historyRepo,
		Pruner:           pruner,
		SchemaSampleRows: cfg.Schema.SampleRows,
		Version:          version,
		Readiness: api.CombineReadinessChecks(
			api.CheckBackend(connector),
			api.CheckTranslatorConfig(cfg),
		),
		DependencyTimeout: time.Second,
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

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("backend", connector.Kind()),
			slog.Bool("translator_enabled", translator != nil),
			slog.Bool("history_enabled", historyRepo != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-runCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openBackend connects to the configured database. Connection failures are
// fatal; authentication failures are called out separately because retrying
// with the same credentials cannot succeed.
func openBackend(ctx context.Context, cfg config.Config, store objectstore.Store, logger *slog.Logger) backend.Connector {
	var (
		connector backend.Connector
		err       error
	)
	switch cfg.Backend.Kind {
	case config.BackendPostgres:
		connector, err = backendpg.Open(ctx, backendpg.Config{
			DSN:             cfg.Backend.DSN,
			MaxOpenConns:    cfg.Backend.MaxOpenConns,
			MaxIdleConns:    cfg.Backend.MaxIdleConns,
			ConnMaxIdleTime: cfg.Backend.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Backend.ConnMaxLifetime,
			PingTimeout:     cfg.Backend.PingTimeout,
		})
	case config.BackendDuckDB:
		var datasets []backendduckdb.Dataset
		datasets, err = backendduckdb.ParseDatasets(cfg.Backend.Datasets)
		if err != nil {
			logger.Error("invalid dataset configuration", slog.Any("error", err))
			os.Exit(1)
		}
		connector, err = backendduckdb.Open(ctx, backendduckdb.Config{
			Path:        cfg.Backend.Path,
			Datasets:    datasets,
			PingTimeout: cfg.Backend.PingTimeout,
		}, store)
	default:
		logger.Error("unsupported backend kind", slog.String("kind", cfg.Backend.Kind))
		os.Exit(1)
	}
	if err != nil {
		var connErr *backend.ConnectError
		if errors.As(err, &connErr) && connErr.Auth {
			logger.Error("backend authentication failed; check the configured credentials",
				slog.String("backend", cfg.Backend.Kind),
				slog.Any("error", err),
			)
		} else {
			logger.Error("failed to connect to backend",
				slog.String("backend", cfg.Backend.Kind),
				slog.Any("error", err),
			)
		}
		os.Exit(1)
	}
	return connector
}
