package config

import (
	"context"
	"log/slog"
	"strings"
)

const masked = "****"

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport != TransportStdio {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}
	logger.InfoContext(ctx, "Config: base_dir", "value", s.BaseDir)
	logger.InfoContext(ctx, "Config: index_name", "value", s.IndexName)

	logger.InfoContext(ctx, "Config: embedding", "value", EmbeddingSettingsLogValue(s.Embedding))

	logger.InfoContext(ctx, "Config: indexing.max_concurrent_operations", "value", s.Indexing.MaxConcurrentOperations)
	logger.InfoContext(ctx, "Config: indexing.max_batch_size", "value", s.Indexing.MaxBatchSize)
	logger.InfoContext(ctx, "Config: indexing.incremental", "value", s.Indexing.Incremental)
	if len(s.Indexing.IndexableExtensions) > 0 {
		logger.InfoContext(ctx, "Config: indexing.indexable_extensions", "value", strings.Join(s.Indexing.IndexableExtensions, ","))
	}

	logger.InfoContext(ctx, "Config: search.weights", "keyword", s.Search.KeywordWeight, "vector", s.Search.VectorWeight)
	logger.InfoContext(ctx, "Config: search.facet_fields", "value", strings.Join(s.Search.FacetFields, ","))
}

// EmbeddingSettingsLogValue returns a slog.Value for EmbeddingSettings with masked data
func EmbeddingSettingsLogValue(s EmbeddingSettings) slog.Value {
	apiKey := ""
	if s.APIKey != "" {
		apiKey = masked
	}
	attrs := []slog.Attr{
		slog.String("provider", s.Provider),
		slog.Int("dimensions", s.Dimensions),
	}
	if s.Provider == EmbeddingProviderOpenAI {
		attrs = append(attrs,
			slog.String("model", s.Model),
			slog.String("base_url", s.BaseURL),
			slog.String("api_key", apiKey),
		)
	}
	if s.RequestsPerSecond > 0 {
		attrs = append(attrs, slog.Float64("requests_per_second", s.RequestsPerSecond))
	}
	return slog.GroupValue(attrs...)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("base_dir", s.BaseDir),
		slog.String("index_name", s.IndexName),
		slog.Any("embedding", EmbeddingSettingsLogValue(s.Embedding)),
	)
}
