package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sha1n/relic-search/internal/config"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		Transport: config.TransportStdio,
		Host:      "127.0.0.1",
		Port:      8080,
		BaseDir:   t.TempDir(),
		IndexName: "code",
		Embedding: config.EmbeddingSettings{Provider: config.EmbeddingProviderHash, Dimensions: 64},
		Indexing: config.IndexingSettings{
			MaxConcurrentOperations: 2,
			MaxContentLength:        100 * 1024,
			MaxFileSize:             1 << 20,
			ExtractSymbols:          true,
			RetryAttempts:           1,
			RequestTimeout:          5 * time.Second,
			MaxBatchSize:            50,
			LockTimeout:             time.Second,
		},
		Search: config.SearchSettings{
			DefaultTop:    10,
			MaxResults:    20,
			KeywordWeight: 0.5,
			VectorWeight:  0.5,
			FacetFields:   []string{"language"},
		},
	}
}

// writeRepo creates a small checkout named myrepo and returns its path.
func writeRepo(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "myrepo")
	files := map[string]string{
		"config/parse.go": "package config\n\n// ParseConfig reads configuration\nfunc ParseConfig(path string) error {\n\treturn nil\n}\n",
		"scripts/load.py": "def load_rows(path):\n    return []\n",
		"assets/logo.png": "PNG",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
