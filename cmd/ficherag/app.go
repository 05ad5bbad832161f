package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/ficherag/internal/assistant"
	"github.com/dshills/ficherag/internal/chunker"
	"github.com/dshills/ficherag/internal/config"
	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/ingest"
	"github.com/dshills/ficherag/internal/llm"
	"github.com/dshills/ficherag/internal/reformulator"
	"github.com/dshills/ficherag/internal/searcher"
	"github.com/dshills/ficherag/internal/storage"
)

// app holds the wired components shared by every command
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *storage.SQLiteStorage
	embedder  embedder.Embedder
	provider  llm.Provider // nil when generation is disabled
	searcher  *searcher.Searcher
	pipeline  *ingest.Pipeline
	assistant *assistant.Assistant
}

// newApp builds every component once from configuration. The same embedder
// instance serves ingestion and search so they share its cache.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	path, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		logger.Info("generation disabled", "reason", err.Error())
		provider = nil
	case err != nil:
		_ = emb.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize generation provider: %w", err)
	}

	srch := searcher.NewSearcher(store, emb,
		searcher.WithPolicy(cfg.Search),
		searcher.WithCacheSize(cfg.Cache.Size),
		searcher.WithCacheTTL(cfg.Cache.TTL),
		searcher.WithLogger(logger.With("component", "searcher")),
	)

	pipeline, err := ingest.NewPipeline(store, emb,
		ingest.WithLogger(logger.With("component", "ingest")),
		ingest.WithChunker(chunker.New(chunker.WithSize(cfg.Ingest.ChunkSize), chunker.WithOverlap(cfg.Ingest.ChunkOverlap))),
		ingest.WithStructuredMarkers(cfg.Ingest.StructuredMarkers),
		ingest.WithRetryPolicy(cfg.Ingest.Retry),
		ingest.WithPacing(cfg.Ingest.PaceDelay, cfg.Ingest.FailureBackoff),
		ingest.WithWorkers(cfg.Ingest.Workers, cfg.Ingest.MaxInFlight),
		ingest.WithRateLimit(cfg.Ingest.RequestsPerSecond),
	)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize ingestion pipeline: %w", err)
	}

	var rewriter assistant.Rewriter
	if provider != nil {
		rewriter = newRewriter(provider, logger)
	}
	asst := assistant.New(srch, rewriter, provider,
		assistant.WithLogger(logger.With("component", "assistant")),
		assistant.WithContextTokens(cfg.Assistant.ContextTokens),
		assistant.WithGeneration(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		embedder:  emb,
		provider:  provider,
		searcher:  srch,
		pipeline:  pipeline,
		assistant: asst,
	}, nil
}

func newRewriter(provider llm.Provider, logger *slog.Logger) *reformulator.Reformulator {
	return reformulator.New(provider, reformulator.WithLogger(logger.With("component", "reformulator")))
}

// Close releases the pipeline pool, the embedder and the store
func (a *app) Close() {
	a.pipeline.Release()
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("failed to close embedder", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", "error", err)
	}
}
