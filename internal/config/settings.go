package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sha1n/relic-search/internal/domain"
	"github.com/sha1n/relic-search/internal/processor"
)

// Transport constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Embedding provider constants
const (
	EmbeddingProviderHash   = "hash"
	EmbeddingProviderOpenAI = "openai"
)

const envPrefix = "RELIC_SEARCH"

// EmbeddingSettings configures the embedding generator
type EmbeddingSettings struct {
	Provider          string  `mapstructure:"provider"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// IndexingSettings configures file processing and index writes
type IndexingSettings struct {
	MaxConcurrentOperations int           `mapstructure:"max_concurrent_operations"`
	MaxContentLength        int           `mapstructure:"max_content_length"`
	MaxFileSize             int64         `mapstructure:"max_file_size"`
	IndexableExtensions     []string      `mapstructure:"indexable_extensions"`
	IgnoredDirectories      []string      `mapstructure:"ignored_directories"`
	ExtractSymbols          bool          `mapstructure:"extract_symbols"`
	Incremental             bool          `mapstructure:"incremental"`
	RetryAttempts           int           `mapstructure:"retry_attempts"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	MaxBatchSize            int           `mapstructure:"max_batch_size"`
	LockTimeout             time.Duration `mapstructure:"lock_timeout"`
}

// SearchSettings configures query execution
type SearchSettings struct {
	DefaultTop    int      `mapstructure:"default_top"`
	MaxResults    int      `mapstructure:"max_results"`
	KeywordWeight float64  `mapstructure:"keyword_weight"`
	VectorWeight  float64  `mapstructure:"vector_weight"`
	FacetFields   []string `mapstructure:"facet_fields"`
	MinSimilarity float64  `mapstructure:"min_similarity"`
}

// Settings application settings
type Settings struct {
	Transport string            `mapstructure:"transport"`
	Host      string            `mapstructure:"host"`
	Port      int               `mapstructure:"port"`
	BaseDir   string            `mapstructure:"base_dir"`
	IndexName string            `mapstructure:"index_name"`
	Embedding EmbeddingSettings `mapstructure:"embedding"`
	Indexing  IndexingSettings  `mapstructure:"indexing"`
	Search    SearchSettings    `mapstructure:"search"`
}

// IndexDir is the directory holding the index files.
func (s *Settings) IndexDir() string {
	return filepath.Join(s.BaseDir, "indexes")
}

// StatusPath is the path of the persisted status manifest.
func (s *Settings) StatusPath() string {
	return filepath.Join(s.BaseDir, "status.json")
}

// LockDir holds the per-repository run locks.
func (s *Settings) LockDir() string {
	return filepath.Join(s.BaseDir, "locks")
}

// keys maps each setting to its CLI flag name. Environment variables are
// derived from the key: embedding.api_key -> RELIC_SEARCH_EMBEDDING_API_KEY.
var keys = map[string]string{
	"transport":                          "transport",
	"host":                               "host",
	"port":                               "port",
	"base_dir":                           "base-dir",
	"index_name":                         "index-name",
	"embedding.provider":                 "embedding-provider",
	"embedding.model":                    "embedding-model",
	"embedding.dimensions":               "embedding-dimensions",
	"embedding.api_key":                  "embedding-api-key",
	"embedding.base_url":                 "embedding-base-url",
	"embedding.requests_per_second":      "embedding-rps",
	"indexing.max_concurrent_operations": "max-concurrency",
	"indexing.max_content_length":        "max-content-length",
	"indexing.max_file_size":             "max-file-size",
	"indexing.indexable_extensions":      "extensions",
	"indexing.ignored_directories":       "ignored-dirs",
	"indexing.extract_symbols":           "extract-symbols",
	"indexing.incremental":               "incremental",
	"indexing.retry_attempts":            "retry-attempts",
	"indexing.request_timeout":           "request-timeout",
	"indexing.max_batch_size":            "batch-size",
	"indexing.lock_timeout":              "lock-timeout",
	"search.default_top":                 "top",
	"search.max_results":                 "max-results",
	"search.keyword_weight":              "keyword-weight",
	"search.vector_weight":               "vector-weight",
	"search.facet_fields":                "facet-fields",
	"search.min_similarity":              "min-similarity",
}

// listKeys are comma-separated when given through the environment
var listKeys = []string{
	"indexing.indexable_extensions",
	"indexing.ignored_directories",
	"search.facet_fields",
}

// EnvVar returns the environment variable bound to a settings key.
func EnvVar(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// Flags that are not registered on the set are skipped.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8080)
	v.SetDefault("base_dir", defaultBaseDir())
	v.SetDefault("index_name", "code")

	v.SetDefault("embedding.provider", EmbeddingProviderHash)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.requests_per_second", 0)

	v.SetDefault("indexing.max_concurrent_operations", 4)
	v.SetDefault("indexing.max_content_length", 100*1024) // 100KB
	v.SetDefault("indexing.max_file_size", int64(10*1024*1024))
	v.SetDefault("indexing.indexable_extensions", processor.KnownExtensions())
	v.SetDefault("indexing.ignored_directories", processor.DefaultIgnoredDirectories)
	v.SetDefault("indexing.extract_symbols", true)
	v.SetDefault("indexing.incremental", false)
	v.SetDefault("indexing.retry_attempts", 3)
	v.SetDefault("indexing.request_timeout", 30*time.Second)
	v.SetDefault("indexing.max_batch_size", 100)
	v.SetDefault("indexing.lock_timeout", 5*time.Minute)

	v.SetDefault("search.default_top", domain.DefaultTop)
	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.keyword_weight", 0.5)
	v.SetDefault("search.vector_weight", 0.5)
	v.SetDefault("search.facet_fields", []string{domain.FieldLanguage, domain.FieldRepositoryID})
	v.SetDefault("search.min_similarity", 0.0)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range keys {
		_ = v.BindEnv(key, EnvVar(key))
		if flags != nil {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Comma-separated lists from the environment arrive as a single element
	for _, key := range listKeys {
		if raw := os.Getenv(EnvVar(key)); raw != "" && !flagChanged(flags, keys[key]) {
			setList(&settings, key, strings.Split(raw, ","))
		}
	}
	settings.Indexing.IndexableExtensions = cleanList(settings.Indexing.IndexableExtensions)
	settings.Indexing.IgnoredDirectories = cleanList(settings.Indexing.IgnoredDirectories)
	settings.Search.FacetFields = cleanList(settings.Search.FacetFields)

	settings.Transport = strings.ToLower(strings.TrimSpace(settings.Transport))
	settings.Embedding.Provider = strings.ToLower(strings.TrimSpace(settings.Embedding.Provider))
	settings.BaseDir = expandHomeDir(settings.BaseDir)

	return &settings, nil
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

func setList(s *Settings, key string, values []string) {
	switch key {
	case "indexing.indexable_extensions":
		s.Indexing.IndexableExtensions = values
	case "indexing.ignored_directories":
		s.Indexing.IgnoredDirectories = values
	case "search.facet_fields":
		s.Search.FacetFields = values
	}
}

// defaultBaseDir returns the default directory for indexes and state
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relic-search"
	}
	return filepath.Join(home, ".relic-search")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// cleanList trims entries and drops empty ones. An empty result is nil so
// consumers fall back to their defaults.
func cleanList(s []string) []string {
	var result []string
	for _, str := range s {
		if str = strings.TrimSpace(str); str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for invalid or conflicting configuration.
func ValidateSettings(s *Settings) error {
	switch s.Transport {
	case TransportStdio:
	case TransportSSE, TransportHTTP:
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got: %d", s.Port)
		}
	default:
		return errors.New("transport must be 'stdio', 'sse' or 'http', got: " + s.Transport)
	}

	if s.BaseDir == "" {
		return errors.New("base-dir cannot be empty")
	}
	if s.IndexName == "" || strings.ContainsAny(s.IndexName, `/\:`) {
		return fmt.Errorf("index-name must be a non-empty file name, got: %q", s.IndexName)
	}

	if err := validateEmbeddingSettings(&s.Embedding); err != nil {
		return err
	}
	if err := validateIndexingSettings(&s.Indexing); err != nil {
		return err
	}
	return validateSearchSettings(&s.Search)
}

func validateEmbeddingSettings(e *EmbeddingSettings) error {
	switch e.Provider {
	case EmbeddingProviderHash:
	case EmbeddingProviderOpenAI:
		if e.APIKey == "" && e.BaseURL == "" {
			return errors.New("embedding-provider 'openai' requires embedding-api-key or embedding-base-url")
		}
	default:
		return errors.New("unknown embedding-provider: " + e.Provider)
	}

	if e.Dimensions < 0 {
		return errors.New("embedding-dimensions cannot be negative")
	}
	if e.RequestsPerSecond < 0 {
		return errors.New("embedding-rps cannot be negative")
	}
	return nil
}

func validateIndexingSettings(i *IndexingSettings) error {
	if i.MaxConcurrentOperations <= 0 {
		return errors.New("max-concurrency must be positive")
	}
	if i.MaxContentLength <= 0 {
		return errors.New("max-content-length must be positive")
	}
	if i.MaxFileSize <= 0 {
		return errors.New("max-file-size must be positive")
	}
	if i.RetryAttempts < 0 {
		return errors.New("retry-attempts cannot be negative")
	}
	if i.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}
	if i.MaxBatchSize <= 0 {
		return errors.New("batch-size must be positive")
	}
	if i.LockTimeout < 0 {
		return errors.New("lock-timeout cannot be negative")
	}
	return nil
}

func validateSearchSettings(s *SearchSettings) error {
	if s.DefaultTop <= 0 {
		return errors.New("top must be positive")
	}
	if s.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}
	if s.KeywordWeight < 0 || s.VectorWeight < 0 {
		return errors.New("search weights cannot be negative")
	}
	if s.KeywordWeight == 0 && s.VectorWeight == 0 {
		return errors.New("at least one search weight must be positive")
	}
	if s.MinSimilarity < -1 || s.MinSimilarity > 1 {
		return fmt.Errorf("min-similarity must be between -1 and 1, got: %g", s.MinSimilarity)
	}
	for _, field := range s.FacetFields {
		if !domain.IsFacetable(field) {
			return fmt.Errorf("facet field %q is not a keyword field", field)
		}
	}
	return nil
}
