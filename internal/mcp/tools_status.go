package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/relic-search/internal/domain"
)

// StatusArgument defines index_status parameters.
type StatusArgument struct {
	Repository string `json:"repository,omitempty" jsonschema:"Repository (e.g. github.com/org/repo or its id). Omit to list all repositories"`
}

// StatusHandler handles the index_status MCP tool.
type StatusHandler struct {
	index Index
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(index Index) *StatusHandler {
	return &StatusHandler{index: index}
}

// Handle reports the indexing status of one or all repositories.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgument) (*mcp.CallToolResult, any, error) {
	var ids []string
	if repo := strings.TrimSpace(args.Repository); repo != "" {
		ids = []string{domain.SanitizeRepositoryID(repo)}
	} else {
		ids = h.index.Repositories()
	}

	if len(ids) == 0 {
		return textResult("No repositories have been indexed."), nil, nil
	}

	var sb strings.Builder
	for _, id := range ids {
		writeStatus(&sb, h.index.GetIndexStatus(ctx, id))
	}
	return textResult(sb.String()), nil, nil
}

func writeStatus(sb *strings.Builder, s domain.IndexStatus) {
	fmt.Fprintf(sb, "### %s\n", domain.RepositoryIDToDisplay(s.RepositoryID))
	fmt.Fprintf(sb, "**Status**: %s\n", s.Status)
	if s.TotalDocuments > 0 {
		fmt.Fprintf(sb, "**Documents**: %d/%d (%.1f%%)\n", s.DocumentsIndexed, s.TotalDocuments, s.ProgressPercentage())
	} else {
		fmt.Fprintf(sb, "**Documents**: %d\n", s.DocumentsIndexed)
	}
	if s.LastIndexed != nil {
		fmt.Fprintf(sb, "**Last indexed**: %s\n", s.LastIndexed.UTC().Format(time.RFC3339))
	}
	if s.EstimatedCompletion != nil && s.Status.IsRunning() {
		fmt.Fprintf(sb, "**Estimated completion**: %s\n", s.EstimatedCompletion.UTC().Format(time.RFC3339))
	}
	if s.ErrorMessage != "" {
		fmt.Fprintf(sb, "**Error**: %s\n", s.ErrorMessage)
	}
	sb.WriteString("\n")
}

// GetToolDefinition returns the MCP tool definition.
func (h *StatusHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "index_status",
		Description: "Report the indexing status and progress of indexed repositories",
	}
}

// RegisterStatusTool registers the status tool with an MCP server.
func RegisterStatusTool(server *mcp.Server, index Index) {
	handler := NewStatusHandler(index)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
