package app

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterCommonFlags registers the flags every command understands
func RegisterCommonFlags(flags *pflag.FlagSet) {
	flags.StringP("base-dir", "d", "", "Directory for indexes and state (default ~/.relic-search)")
	flags.String("index-name", "", "Name of the search index")
	flags.StringP("embedding-provider", "e", "", "Embedding provider: hash or openai")
	flags.String("embedding-model", "", "Embedding model name")
	flags.Int("embedding-dimensions", 0, "Embedding vector dimensions")
	flags.String("embedding-api-key", "", "API key of the embedding provider")
	flags.String("embedding-base-url", "", "Base URL of an OpenAI compatible embedding API")
	flags.Float64("embedding-rps", 0, "Maximum embedding requests per second (0 is unlimited)")
	flags.Int("retry-attempts", 0, "Retries of a failed index request")
	flags.Duration("request-timeout", 0, "Timeout of a single index request")
}

// RegisterIndexFlags registers the flags that control indexing
func RegisterIndexFlags(flags *pflag.FlagSet) {
	flags.BoolP("incremental", "i", false, "Keep existing documents and remove only stale ones")
	flags.Int("batch-size", 0, "Documents written per index batch")
	flags.Int("max-concurrency", 0, "Files processed concurrently")
	flags.Int("max-content-length", 0, "Bytes of content kept per document")
	flags.Int64("max-file-size", 0, "Files larger than this are not read")
	flags.StringSlice("extensions", nil, "Indexable file extensions (comma-separated)")
	flags.StringSlice("ignored-dirs", nil, "Directory names to skip (comma-separated)")
	flags.Bool("extract-symbols", true, "Extract code symbols")
	flags.Duration("lock-timeout", 5*time.Minute, "Wait for a concurrent run of the same repository")
}

// RegisterSearchFlags registers the flags that tune ranking
func RegisterSearchFlags(flags *pflag.FlagSet) {
	flags.Float64("keyword-weight", 0, "Weight of lexical scores in hybrid search")
	flags.Float64("vector-weight", 0, "Weight of vector scores in hybrid search")
	flags.Float64("min-similarity", 0, "Drop vector matches at or below this similarity")
	flags.StringSlice("facet-fields", nil, "Fields to compute facets for (comma-separated)")
}

// RegisterServeFlags registers the MCP server flags
func RegisterServeFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio, sse or http")
	flags.StringP("host", "H", "", "Host for HTTP transports")
	flags.IntP("port", "p", 0, "Port for HTTP transports")
	flags.Int("max-results", 0, "Maximum results per search_code call")
}

// RegisterQueryFlags registers the flags of the search command
func RegisterQueryFlags(flags *pflag.FlagSet) {
	flags.StringP("type", "T", "hybrid", "Search type: hybrid, keyword or semantic")
	flags.StringP("repository", "r", "", "Restrict to a repository id or path")
	flags.StringArrayP("filter", "f", nil, "Filter as field=value, field!=value, field>value, field<value or field~value")
	flags.IntP("top", "n", 0, "Number of results")
	flags.Int("skip", 0, "Number of results to skip")
	flags.Bool("json", false, "Print results as JSON")
}
