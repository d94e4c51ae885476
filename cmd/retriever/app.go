package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siherrmann/retriever"
	"github.com/siherrmann/retriever/core/pipeline"
	"github.com/siherrmann/retriever/database/sqlite"
	"github.com/siherrmann/retriever/extract"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/spf13/cobra"
)

// app holds the retriever built from the config file and everything that has to be closed.
type app struct {
	cfg       *model.Config
	retriever *retriever.Retriever
	log       *slog.Logger
	closers   []func() error
}

// withApp opens the app for one command and cancels it on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("Error closing retriever", slog.Any("error", err))
		}
	}()

	return run(ctx, a)
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, helper.NewError("load config", err)
	}

	a := &app{
		cfg: cfg,
		log: newLogger(cfg.LogLevel),
	}

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg.Embedder, cfg.Retrieval.EmbedTimeout, a.log)
	if err != nil {
		return nil, helper.NewError("create embedder", err)
	}
	if closeEmbedder != nil {
		a.closers = append(a.closers, closeEmbedder)
	}

	extractor := extract.NewRouterFromConfig(cfg.Extract)

	switch cfg.Index.Backend {
	case model.BackendSQLite:
		index, err := sqlite.Open(cfg.Index.Path, embedder.Dimensions(), a.log)
		if err != nil {
			_ = a.Close()
			return nil, helper.NewError("open sqlite index", err)
		}
		a.closers = append(a.closers, index.Close)

		a.retriever, err = retriever.NewRetrieverWithIndex(index, sqlite.NewDocumentStore(index), embedder, extractor, cfg.Retrieval, a.log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	case model.BackendPostgres:
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			_ = a.Close()
			return nil, err
		}

		a.retriever, err = retriever.NewRetrieverWithLogger(dbConfig, embedder, extractor, cfg.Retrieval, a.log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.retriever.Close)
	default:
		_ = a.Close()
		return nil, fmt.Errorf("%w: unknown index backend %q", model.ErrInvalidInput, cfg.Index.Backend)
	}

	a.log.Debug("Opened retriever", slog.String("backend", cfg.Index.Backend), slog.String("index_reference", pipeline.IndexReference(embedder)))
	return a, nil
}

// Close closes everything in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newLogger(levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(helper.NewPrettyHandler(os.Stderr, helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: level,
		},
	}))
}

// newEmbedder creates the configured provider. Remote providers are rate limited and retried.
func newEmbedder(ctx context.Context, cfg model.EmbedderConfig, timeout time.Duration, logger *slog.Logger) (pipeline.Embedder, func() error, error) {
	limit := func(e pipeline.Embedder) pipeline.Embedder {
		return pipeline.NewLimitedEmbedder(e, pipeline.LimitOptions{
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Timeout:           timeout,
			MaxRetries:        3,
		}, logger)
	}

	switch cfg.Provider {
	case model.ProviderHugot:
		embedder, err := pipeline.NewHugotEmbedder(pipeline.HugotOptions{
			Model:          cfg.Model,
			ModelDir:       cfg.ModelDir,
			OnnxFilePath:   cfg.OnnxFile,
			Dimensions:     cfg.Dimensions,
			DocumentPrefix: cfg.DocumentPrefix,
			QueryPrefix:    cfg.QueryPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return embedder, embedder.Close, nil
	case model.ProviderGemini:
		embedder, err := pipeline.NewGeminiEmbedder(ctx, os.Getenv(cfg.APIKeyEnv), cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		return limit(embedder), nil, nil
	case model.ProviderOpenAI:
		embedder, err := pipeline.NewOpenAIEmbedder(os.Getenv(cfg.APIKeyEnv), cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		return limit(embedder), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown embedding provider %q", model.ErrInvalidInput, cfg.Provider)
}
