package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/config"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/history"
	historypg "github.com/seth2k2/SQL-DATABASE-AGENT/internal/history/postgres"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/objectstore"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlagent-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if cfg.History.DSN == "" {
		logger.Error("SQLAGENT_HISTORY_DSN is required for the archiver")
		os.Exit(1)
	}

	db, err := historypg.Open(context.Background(), historypg.DBConfig{
		DSN:             cfg.History.DSN,
		MaxOpenConns:    cfg.History.MaxOpenConns,
		MaxIdleConns:    cfg.History.MaxIdleConns,
		ConnMaxLifetime: cfg.History.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open history db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	archiver := &history.Archiver{
		Repo:   historypg.NewRepository(db),
		Logger: logger,
		Config: history.ArchiverConfig{
			Retention:     cfg.History.Retention,
			PruneInterval: cfg.History.PruneInterval,
			PruneLimit:    cfg.History.PruneLimit,
			ArchivePrefix: cfg.History.ArchivePrefix,
		},
	}

	if cfg.History.ArchiveEnabled {
		store, err := objectstore.New(context.Background(), objectstore.Config{
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
		archiver.Store = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("history archiver started",
		slog.Duration("retention", cfg.History.Retention),
		slog.Duration("interval", cfg.History.PruneInterval),
		slog.Bool("archive_enabled", cfg.History.ArchiveEnabled),
	)
	if err := archiver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("history archiver failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("history archiver stopped")
}
