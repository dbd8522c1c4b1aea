package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reportflow/reportflow/pkg/config"
	"github.com/reportflow/reportflow/pkg/pipeline"
	"github.com/reportflow/reportflow/pkg/storage"
	"github.com/reportflow/reportflow/pkg/storage/s3"
	"github.com/reportflow/reportflow/pkg/tracking"
)

// app bundles the collaborators every command needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     storage.ObjectStore
	tracker   tracking.Store
	gate      *tracking.Gate
	processor *pipeline.Processor

	closeLog func() error
}

// buildApp wires up storage, tracking and the processor from config.
func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Global().Get()

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	logger, closeLog, err := config.SetupLogger(logCfg)
	if err != nil {
		return nil, err
	}

	tracker, err := buildTracker(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	store, err := buildObjectStore(ctx, cfg)
	if err != nil {
		tracker.Close()
		closeLog()
		return nil, err
	}

	gate := tracking.NewGate(tracker, cfg.Tracking.Namespace)
	processor := pipeline.New(pipeline.Config{
		InputContainer: cfg.Input.Container,
		InputPrefix:    cfg.Input.Prefix,
		InputSuffix:    cfg.Input.Suffix,
		OutputPrefix:   cfg.Output.Prefix,
	}, store, gate, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		tracker:   tracker,
		gate:      gate,
		processor: processor,
		closeLog:  closeLog,
	}, nil
}

func buildTracker(cfg *config.Config) (tracking.Store, error) {
	switch cfg.Tracking.Backend {
	case "redis":
		store, err := tracking.NewRedisStore(tracking.RedisConfig{
			Address:    cfg.Tracking.Redis.Address,
			Password:   cfg.Tracking.Redis.Password,
			Database:   cfg.Tracking.Redis.Database,
			PendingTTL: cfg.Tracking.PendingTTL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "local":
		store, err := tracking.NewLocalStore(cfg.Tracking.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return tracking.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown tracking backend %q", cfg.Tracking.Backend)
}

func buildObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		store, err := s3.NewStore(ctx, s3.Config{
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "local":
		store, err := storage.NewLocalStore(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Close releases all collaborators.
func (a *app) Close() {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}
