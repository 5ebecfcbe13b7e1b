package app

import (
	"slices"
	"testing"

	"github.com/spf13/pflag"

	"github.com/sha1n/relic-search/internal/config"
	"github.com/sha1n/relic-search/internal/processor"
)

func TestRegisterFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterCommonFlags(flags)
	RegisterIndexFlags(flags)
	RegisterSearchFlags(flags)
	RegisterServeFlags(flags)
	RegisterQueryFlags(flags)

	names := []string{
		"base-dir", "index-name", "embedding-provider", "embedding-model", "embedding-dimensions",
		"embedding-api-key", "embedding-base-url", "embedding-rps", "retry-attempts", "request-timeout",
		"incremental", "batch-size", "max-concurrency", "max-content-length", "max-file-size",
		"extensions", "ignored-dirs", "extract-symbols", "lock-timeout",
		"keyword-weight", "vector-weight", "min-similarity", "facet-fields",
		"transport", "host", "port", "max-results",
		"type", "repository", "filter", "top", "skip", "json",
	}
	for _, name := range names {
		if flags.Lookup(name) == nil {
			t.Errorf("Flag --%s not registered", name)
		}
	}
}

func TestRegisterFlags_Parse(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterCommonFlags(flags)
	RegisterIndexFlags(flags)
	RegisterQueryFlags(flags)

	err := flags.Parse([]string{
		"-d", "/tmp/relic", "-i", "--extensions", "go,py",
		"-f", "language=go", "-f", "filePath~a,b", "-n", "5", "-T", "keyword",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if v, _ := flags.GetString("base-dir"); v != "/tmp/relic" {
		t.Errorf("base-dir = %q", v)
	}
	if v, _ := flags.GetBool("incremental"); !v {
		t.Error("incremental = false, want true")
	}
	if v, _ := flags.GetStringSlice("extensions"); len(v) != 2 {
		t.Errorf("extensions = %v, want 2 entries", v)
	}
	// Filters are not split on commas
	filters, _ := flags.GetStringArray("filter")
	if len(filters) != 2 || filters[1] != "filePath~a,b" {
		t.Errorf("filter = %v", filters)
	}
	if v, _ := flags.GetInt("top"); v != 5 {
		t.Errorf("top = %d, want 5", v)
	}
	if v, _ := flags.GetString("type"); v != "keyword" {
		t.Errorf("type = %q, want keyword", v)
	}
}

func TestRegisteredFlags_LoadDefaultFileSelection(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterCommonFlags(flags)
	RegisterIndexFlags(flags)
	RegisterSearchFlags(flags)
	RegisterServeFlags(flags)
	if err := flags.Parse([]string{"-d", t.TempDir()}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("LoadSettingsWithFlags failed: %v", err)
	}

	if !slices.Contains(settings.Indexing.IndexableExtensions, ".go") {
		t.Errorf("Expected .go to be indexable, got %v", settings.Indexing.IndexableExtensions)
	}
	if !slices.Contains(settings.Indexing.IgnoredDirectories, "node_modules") {
		t.Errorf("Expected node_modules to be ignored, got %v", settings.Indexing.IgnoredDirectories)
	}

	filter := processor.NewFileFilter(settings.Indexing.IndexableExtensions, settings.Indexing.IgnoredDirectories)
	if outcome := filter.Check("cmd/main.go"); outcome != "" {
		t.Errorf("cmd/main.go outcome = %q, want indexable", outcome)
	}
	if outcome := filter.Check("node_modules/x/x.js"); outcome == "" {
		t.Error("node_modules/x/x.js should be skipped")
	}
}
