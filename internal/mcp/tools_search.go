package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/relic-search/internal/domain"
	"github.com/sha1n/relic-search/internal/processor"
)

// DefaultMaxResults is the default and maximum page size of search_code.
const DefaultMaxResults = 20

// FilterArgument is a single field filter.
type FilterArgument struct {
	Field    string `json:"field" jsonschema:"Index field, e.g. language, fileExtension, metadata.repositoryOwner, lineCount"`
	Operator string `json:"operator,omitempty" jsonschema:"One of eq, ne, gt, lt, contains. Defaults to eq"`
	Value    string `json:"value" jsonschema:"Value to compare against. Dates use RFC 3339"`
}

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string           `json:"query" jsonschema:"Search text: code, identifiers or a natural language description"`
	SearchType string           `json:"searchType,omitempty" jsonschema:"hybrid (default), keyword or semantic"`
	Repository string           `json:"repository,omitempty" jsonschema:"Restrict to a repository (e.g. github.com/org/repo or its id)"`
	Language   string           `json:"language,omitempty" jsonschema:"Filter by language (e.g. go, python, typescript)"`
	Extension  string           `json:"extension,omitempty" jsonschema:"Filter by file extension (e.g. go, py, js)"`
	Filters    []FilterArgument `json:"filters,omitempty" jsonschema:"Additional filters, all of which must match"`
	Top        int              `json:"top,omitempty" jsonschema:"Number of results to return"`
	Skip       int              `json:"skip,omitempty" jsonschema:"Number of results to skip"`
}

// SearchHandler handles the search MCP tool.
type SearchHandler struct {
	index      Index
	maxResults int
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(index Index, maxResults int) *SearchHandler {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &SearchHandler{
		index:      index,
		maxResults: maxResults,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	q, err := h.buildQuery(args)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	var results *domain.SearchResults
	if repo := strings.TrimSpace(args.Repository); repo != "" {
		results, err = h.index.SearchRepository(ctx, domain.SanitizeRepositoryID(repo), q)
	} else {
		results, err = h.index.Search(ctx, q)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return errorResult(err.Error()), nil, nil
	case err != nil:
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	case !results.Ready:
		return errorResult("Search is not available. No repositories have been indexed yet."), nil, nil
	}

	return formatResults(results, args.Query, q.Skip), nil, nil
}

// buildQuery converts tool arguments into a query.
func (h *SearchHandler) buildQuery(args SearchArgument) (domain.SearchQuery, error) {
	searchType, err := domain.ParseSearchType(args.SearchType)
	if err != nil {
		return domain.SearchQuery{}, err
	}

	top := args.Top
	if top <= 0 || top > h.maxResults {
		top = h.maxResults
	}
	q := domain.NewSearchQuery(args.Query, searchType).WithPaging(top, max(args.Skip, 0))

	if args.Language != "" {
		q = q.WithFilters(domain.Eq(domain.FieldLanguage, strings.ToLower(args.Language)))
	}
	if args.Extension != "" {
		q = q.WithFilters(domain.Eq(domain.FieldFileExtension, processor.NormalizeExtension(args.Extension)))
	}
	for _, f := range args.Filters {
		op := domain.FilterOperator(strings.ToLower(f.Operator))
		if op == "" {
			op = domain.OpEq
		}
		q = q.WithFilters(domain.SearchFilter{Field: f.Field, Operator: op, Value: f.Value})
	}
	return q, nil
}

// formatResults renders results as markdown.
func formatResults(results *domain.SearchResults, queryStr string, skip int) *mcp.CallToolResult {
	if results.TotalCount == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s' (%s search):\n\n", results.TotalCount, queryStr, results.SearchType)

	for i, r := range results.Results {
		doc := r.Document
		fmt.Fprintf(&sb, "### %d. %s:%s\n", skip+i+1, domain.RepositoryIDToDisplay(doc.RepositoryID), doc.FilePath)
		fmt.Fprintf(&sb, "**Score**: %.4f | **Language**: %s | **Lines**: %d\n", r.Score, doc.Language, doc.LineCount)
		if len(doc.Metadata.CodeSymbols) > 0 {
			fmt.Fprintf(&sb, "**Symbols**: %s\n", strings.Join(firstN(doc.Metadata.CodeSymbols, 10), ", "))
		}
		sb.WriteString("\n")

		if len(r.Highlights) > 0 {
			sb.WriteString("```\n")
			for _, fragment := range r.Highlights {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}

	if shown := skip + len(results.Results); results.TotalCount > shown {
		fmt.Fprintf(&sb, "... and %d more results\n", results.TotalCount-shown)
	}

	if len(results.Facets) > 0 {
		sb.WriteString("\n**Facets**:\n")
		for _, field := range sortedKeys(results.Facets) {
			values := results.Facets[field]
			if len(values) == 0 {
				continue
			}
			parts := make([]string, 0, len(values))
			for _, v := range firstN(values, 10) {
				parts = append(parts, fmt.Sprintf("%s (%d)", v.Value, v.Count))
			}
			fmt.Fprintf(&sb, "- %s: %s\n", field, strings.Join(parts, ", "))
		}
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed repositories with keyword, semantic or hybrid search. Supports field filters and returns language and repository facets.",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, index Index, maxResults int) {
	handler := NewSearchHandler(index, maxResults)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
