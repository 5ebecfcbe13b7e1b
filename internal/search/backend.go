// Package search manages the code search index: its lifecycle, document
// ingestion, status tracking and keyword, semantic and hybrid queries.
package search

import (
	"context"
	"errors"

	"github.com/sha1n/relic-search/internal/domain"
)

// ErrIndexMissing is returned by backends for operations that need an
// existing index.
var ErrIndexMissing = errors.New("index does not exist")

// LexicalRequest is a full-text query with filters.
type LexicalRequest struct {
	// Text is matched against content, symbols and file name. Empty text
	// matches every document.
	Text string

	Filters      []domain.SearchFilter
	RepositoryID string

	From int
	Size int

	FacetFields []string
	Highlight   bool
}

// LexicalHit is one full-text match.
type LexicalHit struct {
	ID         string
	Score      float64
	Highlights []string
	Document   *domain.SearchableDocument
}

// LexicalResult is the ranked response of a lexical query, ordered by score
// descending then id ascending.
type LexicalResult struct {
	Total  int
	Hits   []LexicalHit
	Facets map[string][]domain.FacetValue
}

// VectorRequest is a similarity query with filters.
type VectorRequest struct {
	Vector        []float32
	Filters       []domain.SearchFilter
	RepositoryID  string
	MinSimilarity float64
}

// ScoredID is a document id with a similarity score.
type ScoredID struct {
	ID    string
	Score float64
}

// Backend stores documents and answers lexical and vector queries. All
// document writes are upserts keyed by document id.
type Backend interface {
	// Exists reports whether the index has been created.
	Exists(ctx context.Context) (bool, error)

	// Create creates the index for vectors of the given dimension. Creating an
	// existing index is a no-op.
	Create(ctx context.Context, dimensions int) error

	// Drop removes the index and all documents.
	Drop(ctx context.Context) error

	// Dimensions returns the vector dimension the index was created with.
	Dimensions(ctx context.Context) (int, error)

	Upsert(ctx context.Context, docs []*domain.SearchableDocument) error
	Delete(ctx context.Context, ids []string) error

	// IDs lists the ids of a repository's documents, sorted.
	IDs(ctx context.Context, repositoryID string) ([]string, error)

	// Get returns a document including its vector, or nil when absent.
	Get(ctx context.Context, id string) (*domain.SearchableDocument, error)

	// Count counts documents of a repository, or all documents when
	// repositoryID is empty.
	Count(ctx context.Context, repositoryID string) (int, error)

	Lexical(ctx context.Context, req LexicalRequest) (*LexicalResult, error)

	// Similar returns every document matching the filters whose similarity
	// exceeds MinSimilarity, ordered by score descending then id ascending.
	Similar(ctx context.Context, req VectorRequest) ([]ScoredID, error)

	// Hydrate loads documents without vectors. Missing ids are omitted.
	Hydrate(ctx context.Context, ids []string) (map[string]*domain.SearchableDocument, error)

	// Facets counts field values over the given documents.
	Facets(ctx context.Context, ids []string, fields []string) (map[string][]domain.FacetValue, error)

	Close() error
}
