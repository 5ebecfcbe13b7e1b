package domain

import "time"

// SearchResult is a single ranked hit.
type SearchResult struct {
	Score float64 `json:"score"`

	// LexicalScore and VectorScore are the normalised component scores that
	// produced Score. Only the component of the executed search type is set.
	LexicalScore float64 `json:"lexicalScore,omitempty"`
	VectorScore  float64 `json:"vectorScore,omitempty"`

	Document   SearchableDocument `json:"document"`
	Highlights []string           `json:"highlights,omitempty"`
}

// FacetValue is one value/count pair of a facet.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// SearchResults is the response of a search.
type SearchResults struct {
	TotalCount int                     `json:"totalCount"`
	Results    []SearchResult          `json:"results"`
	Facets     map[string][]FacetValue `json:"facets"`
	Duration   time.Duration           `json:"duration"`
	SearchType SearchType              `json:"searchType"`

	// Ready is false when the index does not exist yet. It distinguishes an
	// index that is not ready from one that simply has no matches.
	Ready bool `json:"ready"`
}

// EmptyResults returns a result set with no hits.
func EmptyResults(searchType SearchType, ready bool) *SearchResults {
	return &SearchResults{
		Results:    []SearchResult{},
		Facets:     map[string][]FacetValue{},
		SearchType: searchType,
		Ready:      ready,
	}
}
