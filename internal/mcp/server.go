// Package mcp exposes the search engine as Model Context Protocol tools.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/relic-search/internal/domain"
)

// Index is the part of the search engine the tools use.
type Index interface {
	Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResults, error)
	SearchRepository(ctx context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error)
	GetIndexStatus(ctx context.Context, repoID string) domain.IndexStatus
	Repositories() []string
}

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Index backs the tools. Without it the server has no tools.
	Index Index

	// MaxResults caps the page size of search_code. Zero uses DefaultMaxResults.
	MaxResults int
}

// CreateServer creates the MCP server and registers the search tools
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Index != nil {
		RegisterSearchTool(s, cfg.Index, cfg.MaxResults)
		RegisterStatusTool(s, cfg.Index)
	}

	return s
}
