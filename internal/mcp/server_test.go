package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/relic-search/internal/domain"
)

// fakeIndex records queries and returns canned responses.
type fakeIndex struct {
	results  *domain.SearchResults
	err      error
	statuses map[string]domain.IndexStatus

	lastRepo  string
	lastQuery domain.SearchQuery
}

func (f *fakeIndex) Search(_ context.Context, q domain.SearchQuery) (*domain.SearchResults, error) {
	f.lastRepo = ""
	f.lastQuery = q
	return f.results, f.err
}

func (f *fakeIndex) SearchRepository(_ context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error) {
	f.lastRepo = repoID
	f.lastQuery = q
	return f.results, f.err
}

func (f *fakeIndex) GetIndexStatus(_ context.Context, repoID string) domain.IndexStatus {
	if s, ok := f.statuses[repoID]; ok {
		return s
	}
	return domain.IndexStatus{RepositoryID: repoID, Status: domain.StatusNotStarted}
}

func (f *fakeIndex) Repositories() []string {
	return sortedKeys(f.statuses)
}

func sampleResults() *domain.SearchResults {
	res := domain.EmptyResults(domain.SearchTypeHybrid, true)
	res.TotalCount = 3
	res.Results = []domain.SearchResult{
		{
			Score: 0.91,
			Document: domain.SearchableDocument{
				RepositoryID: "github.com_org_repo",
				FilePath:     "config/parse.go",
				Language:     "go",
				LineCount:    42,
				Metadata:     domain.DocumentMetadata{CodeSymbols: []string{"ParseConfig"}},
			},
			Highlights: []string{"func <mark>ParseConfig</mark>() {"},
		},
	}
	res.Facets = map[string][]domain.FacetValue{
		domain.FieldLanguage: {{Value: "go", Count: 2}, {Value: "python", Count: 1}},
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestCreateServer(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
	}{
		{name: "empty config", cfg: ServerConfig{}},
		{name: "without index", cfg: ServerConfig{Name: "relic-search", Version: "1.0.0"}},
		{name: "with index", cfg: ServerConfig{Name: "relic-search", Version: "1.0.0", Index: &fakeIndex{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CreateServer(tt.cfg) == nil {
				t.Fatal("Expected server to be created")
			}
		})
	}
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	handler := NewSearchHandler(&fakeIndex{}, 0)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "  "})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result for empty query")
	}
}

func TestSearchHandler_NotReady(t *testing.T) {
	index := &fakeIndex{results: domain.EmptyResults(domain.SearchTypeHybrid, false)}
	handler := NewSearchHandler(index, 0)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "test"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result when the index is not ready")
	}
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		args     SearchArgument
		contains string
	}{
		{
			name:     "invalid query",
			err:      domain.NewInvalidQueryError("unknown field %q", "color"),
			args:     SearchArgument{Query: "x"},
			contains: "unknown field",
		},
		{
			name:     "backend failure",
			err:      errors.New("disk full"),
			args:     SearchArgument{Query: "x"},
			contains: "Search failed: disk full",
		},
		{
			name:     "unknown search type",
			args:     SearchArgument{Query: "x", SearchType: "fuzzy"},
			contains: "unknown search type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSearchHandler(&fakeIndex{results: sampleResults(), err: tt.err}, 0)
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("Expected error result")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.contains) {
				t.Errorf("text = %q, want it to contain %q", text, tt.contains)
			}
		})
	}
}

func TestSearchHandler_BuildsQuery(t *testing.T) {
	index := &fakeIndex{results: sampleResults()}
	handler := NewSearchHandler(index, 20)

	args := SearchArgument{
		Query:      "ParseConfig",
		SearchType: "keyword",
		Repository: "github.com/org/repo",
		Language:   "Go",
		Extension:  ".GO",
		Filters:    []FilterArgument{{Field: "lineCount", Operator: "gt", Value: "10"}, {Field: "branchName", Value: "main"}},
		Top:        500,
		Skip:       -3,
	}
	if _, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, args); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if index.lastRepo != "github.com_org_repo" {
		t.Errorf("repository = %q, want github.com_org_repo", index.lastRepo)
	}
	q := index.lastQuery
	if q.Type != domain.SearchTypeKeyword {
		t.Errorf("Type = %s, want keyword", q.Type)
	}
	if q.Top != 20 || q.Skip != 0 {
		t.Errorf("paging = top %d skip %d, want top 20 skip 0", q.Top, q.Skip)
	}

	want := []domain.SearchFilter{
		domain.Eq(domain.FieldLanguage, "go"),
		domain.Eq(domain.FieldFileExtension, ".go"),
		{Field: "lineCount", Operator: domain.OpGt, Value: "10"},
		domain.Eq("branchName", "main"),
	}
	if len(q.Filters) != len(want) {
		t.Fatalf("Filters = %v, want %v", q.Filters, want)
	}
	for i := range want {
		if q.Filters[i] != want[i] {
			t.Errorf("Filters[%d] = %v, want %v", i, q.Filters[i], want[i])
		}
	}
}

func TestSearchHandler_DefaultsToHybridAcrossRepositories(t *testing.T) {
	index := &fakeIndex{results: sampleResults()}
	handler := NewSearchHandler(index, 0)

	if _, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "parse"}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if index.lastRepo != "" {
		t.Errorf("expected unscoped search, got repository %q", index.lastRepo)
	}
	if index.lastQuery.Type != domain.SearchTypeHybrid || index.lastQuery.Top != DefaultMaxResults {
		t.Errorf("query = %+v", index.lastQuery)
	}
}

func TestSearchHandler_FormatsResults(t *testing.T) {
	handler := NewSearchHandler(&fakeIndex{results: sampleResults()}, 0)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "ParseConfig"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	text := resultText(t, result)
	for _, want := range []string{
		"Found 3 results for 'ParseConfig'",
		"### 1. github.com/org/repo:config/parse.go",
		"**Symbols**: ParseConfig",
		"func <mark>ParseConfig</mark>() {",
		"... and 2 more results",
		"- language: go (2), python (1)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSearchHandler_NoResults(t *testing.T) {
	handler := NewSearchHandler(&fakeIndex{results: domain.EmptyResults(domain.SearchTypeHybrid, true)}, 0)

	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "nothing"})
	if result.IsError {
		t.Error("no results is not an error")
	}
	if text := resultText(t, result); !strings.Contains(text, "No results found for query: nothing") {
		t.Errorf("text = %q", text)
	}
}

func TestStatusHandler(t *testing.T) {
	indexed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	index := &fakeIndex{statuses: map[string]domain.IndexStatus{
		"github.com_org_a": {RepositoryID: "github.com_org_a", Status: domain.StatusCompleted, DocumentsIndexed: 10, TotalDocuments: 10, LastIndexed: &indexed},
		"github.com_org_b": {RepositoryID: "github.com_org_b", Status: domain.StatusError, ErrorMessage: "backend down"},
	}}
	handler := NewStatusHandler(index)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, StatusArgument{})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	text := resultText(t, result)
	for _, want := range []string{
		"### github.com/org/a",
		"**Documents**: 10/10 (100.0%)",
		"**Last indexed**: 2024-05-01T10:00:00Z",
		"### github.com/org/b",
		"**Error**: backend down",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	result, _, _ = handler.Handle(context.Background(), &mcp.CallToolRequest{}, StatusArgument{Repository: "github.com/org/unknown"})
	if text := resultText(t, result); !strings.Contains(text, "NOT_STARTED") {
		t.Errorf("unknown repository text = %q", text)
	}
}

func TestStatusHandler_NoRepositories(t *testing.T) {
	handler := NewStatusHandler(&fakeIndex{})
	result, _, _ := handler.Handle(context.Background(), &mcp.CallToolRequest{}, StatusArgument{})
	if text := resultText(t, result); !strings.Contains(text, "No repositories") {
		t.Errorf("text = %q", text)
	}
}

func TestServer_CallToolOverTransport(t *testing.T) {
	ctx := context.Background()
	server := CreateServer(ServerConfig{Name: "relic-search", Version: "test", Index: &fakeIndex{results: sampleResults()}})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect failed: %v", err)
	}
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect failed: %v", err)
	}
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_code",
		Arguments: map[string]any{"query": "ParseConfig", "language": "go"},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "config/parse.go") {
		t.Errorf("text = %q", text)
	}
}
