package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/sha1n/relic-search/internal/processor"
)

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Transport != TransportStdio {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
	if settings.IndexName != "code" {
		t.Errorf("Expected default index name 'code', got '%s'", settings.IndexName)
	}
	if settings.Embedding.Provider != EmbeddingProviderHash {
		t.Errorf("Expected default provider 'hash', got '%s'", settings.Embedding.Provider)
	}
	if settings.Indexing.MaxConcurrentOperations != 4 {
		t.Errorf("Expected 4 concurrent operations, got %d", settings.Indexing.MaxConcurrentOperations)
	}
	if settings.Indexing.MaxContentLength != 100*1024 {
		t.Errorf("Expected 100KB content length, got %d", settings.Indexing.MaxContentLength)
	}
	if !settings.Indexing.ExtractSymbols {
		t.Error("Expected symbol extraction enabled by default")
	}
	if settings.Indexing.RequestTimeout != 30*time.Second {
		t.Errorf("Expected 30s request timeout, got %v", settings.Indexing.RequestTimeout)
	}
	if len(settings.Indexing.IndexableExtensions) != len(processor.KnownExtensions()) {
		t.Errorf("Expected the language table extensions, got %v", settings.Indexing.IndexableExtensions)
	}
	if len(settings.Indexing.IgnoredDirectories) != len(processor.DefaultIgnoredDirectories) {
		t.Errorf("Expected the default ignored directories, got %v", settings.Indexing.IgnoredDirectories)
	}
	if settings.Search.KeywordWeight != 0.5 || settings.Search.VectorWeight != 0.5 {
		t.Errorf("Expected 0.5/0.5 weights, got %v/%v", settings.Search.KeywordWeight, settings.Search.VectorWeight)
	}
	if len(settings.Search.FacetFields) != 2 {
		t.Errorf("Expected 2 default facet fields, got %v", settings.Search.FacetFields)
	}
	if err := ValidateSettings(settings); err != nil {
		t.Errorf("Default settings should be valid: %v", err)
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	t.Setenv("RELIC_SEARCH_PORT", "9090")
	t.Setenv("RELIC_SEARCH_INDEX_NAME", "monorepo")
	t.Setenv("RELIC_SEARCH_EMBEDDING_PROVIDER", "OpenAI")
	t.Setenv("RELIC_SEARCH_EMBEDDING_API_KEY", "sk-test")
	t.Setenv("RELIC_SEARCH_EMBEDDING_DIMENSIONS", "1536")
	t.Setenv("RELIC_SEARCH_INDEXING_INCREMENTAL", "true")
	t.Setenv("RELIC_SEARCH_INDEXING_REQUEST_TIMEOUT", "5s")
	t.Setenv("RELIC_SEARCH_SEARCH_VECTOR_WEIGHT", "0.75")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.IndexName != "monorepo" {
		t.Errorf("Expected index name 'monorepo', got '%s'", settings.IndexName)
	}
	if settings.Embedding.Provider != EmbeddingProviderOpenAI {
		t.Errorf("Expected provider 'openai', got '%s'", settings.Embedding.Provider)
	}
	if settings.Embedding.APIKey != "sk-test" {
		t.Errorf("Expected api key from env, got '%s'", settings.Embedding.APIKey)
	}
	if settings.Embedding.Dimensions != 1536 {
		t.Errorf("Expected 1536 dimensions, got %d", settings.Embedding.Dimensions)
	}
	if !settings.Indexing.Incremental {
		t.Error("Expected incremental indexing from env")
	}
	if settings.Indexing.RequestTimeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", settings.Indexing.RequestTimeout)
	}
	if settings.Search.VectorWeight != 0.75 {
		t.Errorf("Expected vector weight 0.75, got %v", settings.Search.VectorWeight)
	}
}

func TestLoadSettings_ListEnvVars(t *testing.T) {
	t.Setenv("RELIC_SEARCH_INDEXING_INDEXABLE_EXTENSIONS", "go, .py,,ts ")
	t.Setenv("RELIC_SEARCH_SEARCH_FACET_FIELDS", "language")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	want := []string{"go", ".py", "ts"}
	got := settings.Indexing.IndexableExtensions
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("extension[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(settings.Search.FacetFields) != 1 || settings.Search.FacetFields[0] != "language" {
		t.Errorf("Expected [language], got %v", settings.Search.FacetFields)
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()

	if err := os.WriteFile(".env", []byte("host=127.0.0.2\nport=7000"), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "127.0.0.2" {
		t.Errorf("Expected host 127.0.0.2, got %s", settings.Host)
	}
	if settings.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", settings.Port)
	}
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	t.Setenv("RELIC_SEARCH_PORT", "not-a-number")

	if _, err := LoadSettings(); err == nil {
		t.Fatal("Expected error for invalid port type")
	}
}

func TestLoadSettings_ExpandsHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("RELIC_SEARCH_BASE_DIR", "~/relic")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if want := filepath.Join(home, "relic"); settings.BaseDir != want {
		t.Errorf("BaseDir = %q, want %q", settings.BaseDir, want)
	}
	if want := filepath.Join(home, "relic", "indexes"); settings.IndexDir() != want {
		t.Errorf("IndexDir = %q, want %q", settings.IndexDir(), want)
	}
}

func TestLoadSettingsWithFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("RELIC_SEARCH_PORT", "9090")
	t.Setenv("RELIC_SEARCH_INDEXING_MAX_BATCH_SIZE", "10")
	t.Setenv("RELIC_SEARCH_INDEXING_INDEXABLE_EXTENSIONS", "go,py")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.Int("batch-size", 0, "")
	flags.StringSlice("extensions", nil, "")
	flags.Bool("incremental", false, "")
	_ = flags.Set("port", "7777")
	_ = flags.Set("batch-size", "25")
	_ = flags.Set("extensions", "rs")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 7777 {
		t.Errorf("Expected CLI port 7777, got %d", settings.Port)
	}
	if settings.Indexing.MaxBatchSize != 25 {
		t.Errorf("Expected CLI batch size 25, got %d", settings.Indexing.MaxBatchSize)
	}
	if len(settings.Indexing.IndexableExtensions) != 1 || settings.Indexing.IndexableExtensions[0] != "rs" {
		t.Errorf("Expected CLI extensions [rs], got %v", settings.Indexing.IndexableExtensions)
	}
	if settings.Indexing.Incremental {
		t.Error("An unset flag must not override the default")
	}
}

func TestLoadSettingsWithFlags_UnregisteredFlagsAreSkipped(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("transport", "", "")
	_ = flags.Set("transport", "HTTP")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Transport != TransportHTTP {
		t.Errorf("Expected normalised transport 'http', got '%s'", settings.Transport)
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("embedding.api_key"); got != "RELIC_SEARCH_EMBEDDING_API_KEY" {
		t.Errorf("EnvVar = %q", got)
	}
}

func validSettings() *Settings {
	return &Settings{
		Transport: TransportStdio,
		Port:      8080,
		BaseDir:   "/tmp/relic",
		IndexName: "code",
		Embedding: EmbeddingSettings{Provider: EmbeddingProviderHash},
		Indexing: IndexingSettings{
			MaxConcurrentOperations: 4,
			MaxContentLength:        1024,
			MaxFileSize:             4096,
			RetryAttempts:           3,
			RequestTimeout:          time.Second,
			MaxBatchSize:            100,
			LockTimeout:             time.Minute,
		},
		Search: SearchSettings{
			DefaultTop:    50,
			MaxResults:    20,
			KeywordWeight: 0.5,
			VectorWeight:  0.5,
			FacetFields:   []string{"language"},
		},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Settings)
		wantErrSub string
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{name: "valid http", mutate: func(s *Settings) { s.Transport = TransportHTTP }},
		{
			name:   "valid openai",
			mutate: func(s *Settings) { s.Embedding = EmbeddingSettings{Provider: EmbeddingProviderOpenAI, APIKey: "sk"} },
		},
		{name: "unknown transport", mutate: func(s *Settings) { s.Transport = "grpc" }, wantErrSub: "transport"},
		{name: "bad port", mutate: func(s *Settings) { s.Transport = TransportSSE; s.Port = 0 }, wantErrSub: "port"},
		{name: "empty base dir", mutate: func(s *Settings) { s.BaseDir = "" }, wantErrSub: "base-dir"},
		{name: "index name with separator", mutate: func(s *Settings) { s.IndexName = "a/b" }, wantErrSub: "index-name"},
		{name: "unknown provider", mutate: func(s *Settings) { s.Embedding.Provider = "magic" }, wantErrSub: "embedding-provider"},
		{name: "openai without key", mutate: func(s *Settings) { s.Embedding.Provider = EmbeddingProviderOpenAI }, wantErrSub: "embedding-api-key"},
		{name: "negative dimensions", mutate: func(s *Settings) { s.Embedding.Dimensions = -1 }, wantErrSub: "dimensions"},
		{name: "negative rps", mutate: func(s *Settings) { s.Embedding.RequestsPerSecond = -1 }, wantErrSub: "rps"},
		{name: "zero concurrency", mutate: func(s *Settings) { s.Indexing.MaxConcurrentOperations = 0 }, wantErrSub: "max-concurrency"},
		{name: "zero content length", mutate: func(s *Settings) { s.Indexing.MaxContentLength = 0 }, wantErrSub: "max-content-length"},
		{name: "zero file size", mutate: func(s *Settings) { s.Indexing.MaxFileSize = 0 }, wantErrSub: "max-file-size"},
		{name: "negative retries", mutate: func(s *Settings) { s.Indexing.RetryAttempts = -1 }, wantErrSub: "retry-attempts"},
		{name: "zero timeout", mutate: func(s *Settings) { s.Indexing.RequestTimeout = 0 }, wantErrSub: "request-timeout"},
		{name: "zero batch", mutate: func(s *Settings) { s.Indexing.MaxBatchSize = 0 }, wantErrSub: "batch-size"},
		{name: "zero top", mutate: func(s *Settings) { s.Search.DefaultTop = 0 }, wantErrSub: "top"},
		{name: "negative weight", mutate: func(s *Settings) { s.Search.KeywordWeight = -0.1 }, wantErrSub: "weights"},
		{
			name:       "zero weights",
			mutate:     func(s *Settings) { s.Search.KeywordWeight = 0; s.Search.VectorWeight = 0 },
			wantErrSub: "weight",
		},
		{name: "similarity out of range", mutate: func(s *Settings) { s.Search.MinSimilarity = 2 }, wantErrSub: "min-similarity"},
		{name: "text facet", mutate: func(s *Settings) { s.Search.FacetFields = []string{"content"} }, wantErrSub: "facet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErrSub == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErrSub)
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Errorf("Expected %q in error, got: %v", tt.wantErrSub, err)
			}
		})
	}
}

func TestLoadSettingsWithFlags_UnsetListFlagsKeepDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringSlice("extensions", nil, "")
	flags.StringSlice("ignored-dirs", nil, "")
	flags.StringSlice("facet-fields", nil, "")
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	exts := settings.Indexing.IndexableExtensions
	if len(exts) != len(processor.KnownExtensions()) {
		t.Errorf("Expected %d default extensions, got %v", len(processor.KnownExtensions()), exts)
	}
	dirs := settings.Indexing.IgnoredDirectories
	found := false
	for _, d := range dirs {
		if d == "node_modules" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected node_modules to be ignored by default, got %v", dirs)
	}
	if len(settings.Search.FacetFields) != 2 {
		t.Errorf("Expected 2 default facet fields, got %v", settings.Search.FacetFields)
	}
}

func TestCleanList(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil", input: nil, want: nil},
		{name: "empty", input: []string{}, want: nil},
		{name: "blank entries", input: []string{" ", ""}, want: nil},
		{name: "trims", input: []string{" go ", "", "py"}, want: []string{"go", "py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanList(tt.input)
			if (got == nil) != (tt.want == nil) || len(got) != len(tt.want) {
				t.Fatalf("cleanList(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("cleanList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}
