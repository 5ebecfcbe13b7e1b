package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sha1n/relic-search/internal/config"
	"github.com/sha1n/relic-search/internal/embedding"
	"github.com/sha1n/relic-search/internal/pipeline"
	"github.com/sha1n/relic-search/internal/processor"
	"github.com/sha1n/relic-search/internal/search"
	"github.com/sha1n/relic-search/internal/source"
	"github.com/sha1n/relic-search/internal/symbols"
)

// Components are the wired services shared by every command.
type Components struct {
	Settings  *config.Settings
	Embedder  embedding.Embedder
	Backend   *search.BleveBackend
	Engine    *search.Engine
	Processor *processor.Processor
	Pipeline  *pipeline.Pipeline
}

// NewComponents opens the index under the configured base directory and
// wires the engine, processor and pipeline. Close releases the index.
func NewComponents(settings *config.Settings, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	emb, err := embedding.New(embedding.Config{
		Provider:          settings.Embedding.Provider,
		Model:             settings.Embedding.Model,
		Dimensions:        settings.Embedding.Dimensions,
		APIKey:            settings.Embedding.APIKey,
		BaseURL:           settings.Embedding.BaseURL,
		RequestsPerSecond: settings.Embedding.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	backend, err := search.NewBleveBackend(search.BackendConfig{
		Dir:             settings.IndexDir(),
		Name:            settings.IndexName,
		CompressVectors: true,
	})
	if err != nil {
		return nil, err
	}

	c := &Components{Settings: settings, Embedder: emb, Backend: backend}
	if err := c.wire(logger); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) wire(logger *slog.Logger) error {
	s := c.Settings

	tracker, err := search.NewTracker(s.StatusPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to load index status: %w", err)
	}

	cfg := search.DefaultConfig()
	cfg.MaxBatchSize = s.Indexing.MaxBatchSize
	cfg.Retry = search.RetryPolicy{
		Attempts:        s.Indexing.RetryAttempts,
		Timeout:         s.Indexing.RequestTimeout,
		InitialInterval: 200 * time.Millisecond,
	}
	cfg.Weights = search.Weights{Lexical: s.Search.KeywordWeight, Vector: s.Search.VectorWeight}
	if len(s.Search.FacetFields) > 0 {
		cfg.FacetFields = s.Search.FacetFields
	}
	cfg.MinSimilarity = s.Search.MinSimilarity

	c.Engine, err = search.NewEngine(c.Backend, c.Embedder, tracker, cfg, logger)
	if err != nil {
		return err
	}

	c.Processor, err = processor.NewProcessor(processor.Options{
		MaxConcurrentOperations: s.Indexing.MaxConcurrentOperations,
		MaxContentLength:        s.Indexing.MaxContentLength,
		IndexableExtensions:     s.Indexing.IndexableExtensions,
		IgnoredDirectories:      s.Indexing.IgnoredDirectories,
		ExtractSymbols:          s.Indexing.ExtractSymbols,
	}, c.Embedder, symbols.NewRegexExtractor(symbols.DefaultMinFrequency), logger)
	if err != nil {
		return err
	}

	c.Pipeline, err = pipeline.New(c.Engine, c.Processor, source.NewGitClient(), pipeline.Options{
		Incremental: s.Indexing.Incremental,
		BatchSize:   s.Indexing.MaxBatchSize,
		LockDir:     s.LockDir(),
		LockTimeout: s.Indexing.LockTimeout,
		MaxFileSize: s.Indexing.MaxFileSize,
	}, logger)
	return err
}

// Close releases the index.
func (c *Components) Close() error {
	if c == nil || c.Backend == nil {
		return nil
	}
	return c.Backend.Close()
}
