package domain

import (
	"fmt"
	"strings"
)

// SearchType selects the retrieval paradigm.
type SearchType string

const (
	SearchTypeSemantic SearchType = "semantic"
	SearchTypeKeyword  SearchType = "keyword"
	SearchTypeHybrid   SearchType = "hybrid"
)

// Default paging bounds.
const (
	DefaultTop  = 50
	DefaultSkip = 0
)

// ParseSearchType parses a search type name. Empty input yields Hybrid.
func ParseSearchType(s string) (SearchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return SearchTypeHybrid, nil
	case "semantic", "vector":
		return SearchTypeSemantic, nil
	case "keyword", "lexical", "text":
		return SearchTypeKeyword, nil
	default:
		return "", fmt.Errorf("unknown search type: %q", s)
	}
}

// FilterOperator is a comparison used by SearchFilter.
type FilterOperator string

const (
	OpEq       FilterOperator = "eq"
	OpNe       FilterOperator = "ne"
	OpGt       FilterOperator = "gt"
	OpLt       FilterOperator = "lt"
	OpContains FilterOperator = "contains"
)

// IsValid reports whether op is a known operator.
func (op FilterOperator) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpContains:
		return true
	}
	return false
}

// SearchFilter restricts results to documents whose Field satisfies Operator
// against Value. Field names follow the index schema, e.g. "language" or
// "metadata.repositoryOwner".
type SearchFilter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

// Eq is shorthand for an equality filter.
func Eq(field, value string) SearchFilter {
	return SearchFilter{Field: field, Operator: OpEq, Value: value}
}

func (f SearchFilter) String() string {
	return fmt.Sprintf("%s %s %q", f.Field, f.Operator, f.Value)
}

// SearchQuery describes one search request. Queries are values: the With*
// methods return a modified copy and never touch the receiver.
type SearchQuery struct {
	Text    string         `json:"text"`
	Type    SearchType     `json:"searchType"`
	Filters []SearchFilter `json:"filters"`
	Top     int            `json:"top"`
	Skip    int            `json:"skip"`
}

// NewSearchQuery returns a query with default paging. An empty type yields Hybrid.
func NewSearchQuery(text string, searchType SearchType) SearchQuery {
	if searchType == "" {
		searchType = SearchTypeHybrid
	}
	return SearchQuery{
		Text:    text,
		Type:    searchType,
		Filters: []SearchFilter{},
		Top:     DefaultTop,
		Skip:    DefaultSkip,
	}
}

// WithFilters appends filters. All filters must match (AND).
func (q SearchQuery) WithFilters(filters ...SearchFilter) SearchQuery {
	merged := make([]SearchFilter, 0, len(q.Filters)+len(filters))
	merged = append(merged, q.Filters...)
	merged = append(merged, filters...)
	q.Filters = merged
	return q
}

// WithPaging sets the page size and offset.
func (q SearchQuery) WithPaging(top, skip int) SearchQuery {
	q.Top = top
	q.Skip = skip
	return q
}

// Validate checks paging bounds and operators. Field names are validated by
// the engine against its schema.
func (q SearchQuery) Validate() error {
	if q.Top <= 0 {
		return NewInvalidQueryError("top must be positive, got %d", q.Top)
	}
	if q.Skip < 0 {
		return NewInvalidQueryError("skip cannot be negative, got %d", q.Skip)
	}
	switch q.Type {
	case SearchTypeHybrid, SearchTypeKeyword, SearchTypeSemantic:
	default:
		return NewInvalidQueryError("unknown search type %q", q.Type)
	}
	if q.Type == SearchTypeSemantic && strings.TrimSpace(q.Text) == "" {
		return NewInvalidQueryError("semantic search requires query text")
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return NewInvalidQueryError("filter field cannot be empty")
		}
		if !f.Operator.IsValid() {
			return NewInvalidQueryError("unknown operator %q on field %q", f.Operator, f.Field)
		}
	}
	return nil
}
