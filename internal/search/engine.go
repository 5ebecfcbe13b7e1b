package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sha1n/relic-search/internal/domain"
	"github.com/sha1n/relic-search/internal/embedding"
)

const (
	// DefaultMaxBatchSize is the number of documents sent to the backend per
	// write.
	DefaultMaxBatchSize = 100

	// DefaultLexicalCandidates bounds the lexical candidates of a hybrid search.
	DefaultLexicalCandidates = 1000
)

// DefaultFacetFields are computed for every search unless configured.
var DefaultFacetFields = []string{domain.FieldLanguage, domain.FieldRepositoryID}

// Config holds engine settings.
type Config struct {
	MaxBatchSize      int
	LexicalCandidates int
	Retry             RetryPolicy
	Weights           Weights
	FacetFields       []string

	// MinSimilarity drops vector matches scoring at or below it.
	MinSimilarity float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:      DefaultMaxBatchSize,
		LexicalCandidates: DefaultLexicalCandidates,
		Retry:             DefaultRetryPolicy(),
		Weights:           DefaultWeights(),
		FacetFields:       append([]string(nil), DefaultFacetFields...),
	}
}

// BatchResult lists the outcome of IndexDocumentsBatch.
type BatchResult struct {
	Indexed []string
	Failed  []domain.FailedDocument
}

// Engine manages the search index lifecycle, ingestion and queries.
type Engine struct {
	backend  Backend
	embedder embedding.Embedder
	tracker  *Tracker
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an engine. The tracker may be nil, in which case an
// in-memory one is used.
func NewEngine(backend Backend, embedder embedding.Embedder, tracker *Tracker, cfg Config, logger *slog.Logger) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.LexicalCandidates <= 0 {
		cfg.LexicalCandidates = DefaultLexicalCandidates
	}
	if cfg.Weights.Lexical < 0 || cfg.Weights.Vector < 0 {
		return nil, fmt.Errorf("fusion weights cannot be negative: %+v", cfg.Weights)
	}
	if cfg.Weights.Lexical == 0 && cfg.Weights.Vector == 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.FacetFields == nil {
		cfg.FacetFields = append([]string(nil), DefaultFacetFields...)
	}
	for _, f := range cfg.FacetFields {
		if !domain.IsFacetable(f) {
			return nil, fmt.Errorf("field %q is not facetable", f)
		}
	}
	if tracker == nil {
		var err error
		if tracker, err = NewTracker("", logger); err != nil {
			return nil, err
		}
	}

	return &Engine{
		backend:  backend,
		embedder: embedder,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Tracker returns the status tracker used by the engine.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Repositories returns the ids of tracked repositories, sorted.
func (e *Engine) Repositories() []string {
	return e.tracker.Repositories()
}

// Embedder returns the embedder used for queries.
func (e *Engine) Embedder() embedding.Embedder {
	return e.embedder
}

// EnsureIndex creates the index if it does not exist.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	return withRetryErr(ctx, e.cfg.Retry, e.logger, "ensure index", func(ctx context.Context) error {
		exists, err := e.backend.Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return e.backend.Create(ctx, e.embedder.Dimensions())
	})
}

// RecreateIndex drops the index with all documents and creates it for the
// given vector dimension. Zero uses the embedder's dimension.
func (e *Engine) RecreateIndex(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		dimensions = e.embedder.Dimensions()
	}

	e.logger.Warn("Recreating search index, all documents will be removed", "dimensions", dimensions)
	if err := withRetryErr(ctx, e.cfg.Retry, e.logger, "drop index", e.backend.Drop); err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	err := withRetryErr(ctx, e.cfg.Retry, e.logger, "create index", func(ctx context.Context) error {
		return e.backend.Create(ctx, dimensions)
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	for _, repoID := range e.tracker.Repositories() {
		if err := e.tracker.Remove(repoID); err != nil {
			e.logger.Warn("Failed to reset repository status", "repository", repoID, "error", err)
		}
	}
	return nil
}

// IndexDocument upserts a single document.
func (e *Engine) IndexDocument(ctx context.Context, doc *domain.SearchableDocument) error {
	_, err := e.IndexDocumentsBatch(ctx, []*domain.SearchableDocument{doc})
	var partial *domain.PartialBatchError
	if errors.As(err, &partial) && len(partial.Failed) == 1 {
		return partial.Failed[0].Err
	}
	return err
}

// IndexDocumentsBatch validates and upserts documents in chunks of
// MaxBatchSize. A failing chunk marks its documents failed without aborting
// the others; the error is then a *domain.PartialBatchError.
func (e *Engine) IndexDocumentsBatch(ctx context.Context, docs []*domain.SearchableDocument) (BatchResult, error) {
	result := BatchResult{Indexed: []string{}, Failed: []domain.FailedDocument{}}
	if len(docs) == 0 {
		return result, nil
	}

	dims, err := e.dimensions(ctx)
	if err != nil {
		return result, err
	}

	valid := make([]*domain.SearchableDocument, 0, len(docs))
	for _, doc := range docs {
		if err := validateDocument(doc, dims); err != nil {
			id := ""
			if doc != nil {
				id = doc.ID
			}
			result.Failed = append(result.Failed, domain.FailedDocument{ID: id, Err: err})
			continue
		}
		valid = append(valid, doc)
	}

	for start := 0; start < len(valid); start += e.cfg.MaxBatchSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("indexing canceled: %w", err)
		}

		end := min(start+e.cfg.MaxBatchSize, len(valid))
		chunk := valid[start:end]

		err := withRetryErr(ctx, e.cfg.Retry, e.logger, "upsert documents", func(ctx context.Context) error {
			return e.backend.Upsert(ctx, chunk)
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("indexing canceled: %w", ctx.Err())
			}
			e.logger.Error("Failed to index document chunk", "size", len(chunk), "error", err)
			for _, doc := range chunk {
				result.Failed = append(result.Failed, domain.FailedDocument{ID: doc.ID, Err: err})
			}
			continue
		}
		for _, doc := range chunk {
			result.Indexed = append(result.Indexed, doc.ID)
		}
	}

	if len(result.Failed) > 0 {
		return result, &domain.PartialBatchError{Failed: result.Failed, Succeeded: len(result.Indexed)}
	}
	return result, nil
}

func validateDocument(doc *domain.SearchableDocument, dims int) error {
	if doc == nil {
		return fmt.Errorf("%w: document cannot be nil", domain.ErrPermanent)
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPermanent, err)
	}
	if len(doc.ContentVector) != dims {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", domain.ErrPermanent, len(doc.ContentVector), dims)
	}
	return nil
}

// dimensions returns the vector dimension of an existing index.
func (e *Engine) dimensions(ctx context.Context) (int, error) {
	dims, err := withRetry(ctx, e.cfg.Retry, e.logger, "read dimensions", e.backend.Dimensions)
	if errors.Is(err, ErrIndexMissing) {
		return 0, domain.ErrIndexNotReady
	}
	if err != nil {
		return 0, err
	}
	return dims, nil
}

// DeleteRepositoryDocuments removes every document of a repository and
// returns how many were removed. A missing index has nothing to delete.
func (e *Engine) DeleteRepositoryDocuments(ctx context.Context, repoID string) (int, error) {
	if repoID == "" {
		return 0, errors.New("repository id cannot be empty")
	}

	ids, err := e.ListDocumentIDs(ctx, repoID)
	if err != nil {
		return 0, err
	}
	if err := e.DeleteDocuments(ctx, ids); err != nil {
		return 0, err
	}

	e.logger.Info("Deleted repository documents", "repository", repoID, "count", len(ids))
	return len(ids), nil
}

// RemoveRepository deletes a repository's documents and forgets its status.
func (e *Engine) RemoveRepository(ctx context.Context, repoID string) (int, error) {
	n, err := e.DeleteRepositoryDocuments(ctx, repoID)
	if err != nil {
		return n, err
	}
	return n, e.tracker.Remove(repoID)
}

// DeleteDocuments removes documents by id in chunks of MaxBatchSize.
func (e *Engine) DeleteDocuments(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += e.cfg.MaxBatchSize {
		chunk := ids[start:min(start+e.cfg.MaxBatchSize, len(ids))]
		err := withRetryErr(ctx, e.cfg.Retry, e.logger, "delete documents", func(ctx context.Context) error {
			return e.backend.Delete(ctx, chunk)
		})
		if errors.Is(err, ErrIndexMissing) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
	}
	return nil
}

// ListDocumentIDs returns the sorted ids of a repository's documents.
func (e *Engine) ListDocumentIDs(ctx context.Context, repoID string) ([]string, error) {
	ids, err := withRetry(ctx, e.cfg.Retry, e.logger, "list documents", func(ctx context.Context) ([]string, error) {
		return e.backend.IDs(ctx, repoID)
	})
	if errors.Is(err, ErrIndexMissing) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

// GetDocument returns a document by id. A missing document or index is
// reported as (nil, false, nil).
func (e *Engine) GetDocument(ctx context.Context, id string) (*domain.SearchableDocument, bool, error) {
	doc, err := withRetry(ctx, e.cfg.Retry, e.logger, "get document", func(ctx context.Context) (*domain.SearchableDocument, error) {
		return e.backend.Get(ctx, id)
	})
	if errors.Is(err, ErrIndexMissing) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return nil, false, nil
	}
	return doc, true, nil
}

// GetIndexStatus returns the status of a repository. A tracked run wins;
// otherwise the status is derived from the indexed document count. It never
// fails: backend errors are reported as ERROR.
func (e *Engine) GetIndexStatus(ctx context.Context, repoID string) domain.IndexStatus {
	if status, ok := e.tracker.Status(repoID); ok {
		return status
	}

	status := domain.IndexStatus{RepositoryID: repoID, Status: domain.StatusNotStarted}

	count, err := withRetry(ctx, e.cfg.Retry, e.logger, "count documents", func(ctx context.Context) (int, error) {
		return e.backend.Count(ctx, repoID)
	})
	switch {
	case errors.Is(err, ErrIndexMissing):
		return status
	case err != nil:
		status.Status = domain.StatusError
		status.ErrorMessage = err.Error()
		return status
	case count > 0:
		status.Status = domain.StatusCompleted
		status.DocumentsIndexed = count
		status.TotalDocuments = count
	}
	return status
}

// Search runs a query across all repositories.
func (e *Engine) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResults, error) {
	return e.search(ctx, "", q)
}

// SearchRepository runs a query scoped to one repository.
func (e *Engine) SearchRepository(ctx context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error) {
	if repoID == "" {
		return nil, domain.NewInvalidQueryError("repository id cannot be empty")
	}
	return e.search(ctx, repoID, q)
}

func (e *Engine) search(ctx context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error) {
	start := time.Now()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	for _, f := range q.Filters {
		if err := domain.ValidateFilter(f); err != nil {
			return nil, err
		}
	}

	exists, err := withRetry(ctx, e.cfg.Retry, e.logger, "check index", e.backend.Exists)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if !exists {
		res := domain.EmptyResults(q.Type, false)
		res.Duration = time.Since(start)
		return res, nil
	}

	var res *domain.SearchResults
	blank := strings.TrimSpace(q.Text) == ""
	switch {
	case q.Type == domain.SearchTypeKeyword, q.Type == domain.SearchTypeHybrid && blank:
		res, err = e.keywordSearch(ctx, repoID, q)
	case q.Type == domain.SearchTypeSemantic:
		res, err = e.semanticSearch(ctx, repoID, q)
	default:
		res, err = e.hybridSearch(ctx, repoID, q)
	}
	if errors.Is(err, ErrIndexMissing) || errors.Is(err, domain.ErrIndexNotReady) {
		// Dropped while the search was running
		res = domain.EmptyResults(q.Type, false)
		res.Duration = time.Since(start)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res.SearchType = q.Type
	res.Ready = true
	res.Duration = time.Since(start)

	e.logger.Debug("Search completed", "type", q.Type, "repository", repoID, "total", res.TotalCount,
		"returned", len(res.Results), "duration", res.Duration)
	return res, nil
}

func (e *Engine) keywordSearch(ctx context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error) {
	lex, err := withRetry(ctx, e.cfg.Retry, e.logger, "keyword search", func(ctx context.Context) (*LexicalResult, error) {
		return e.backend.Lexical(ctx, LexicalRequest{
			Text:         q.Text,
			Filters:      q.Filters,
			RepositoryID: repoID,
			From:         q.Skip,
			Size:         q.Top,
			FacetFields:  e.cfg.FacetFields,
			Highlight:    true,
		})
	})
	if err != nil {
		return nil, err
	}

	res := domain.EmptyResults(q.Type, true)
	res.TotalCount = lex.Total
	res.Facets = lex.Facets
	for _, hit := range lex.Hits {
		res.Results = append(res.Results, domain.SearchResult{
			Score:        hit.Score,
			LexicalScore: hit.Score,
			Document:     *hit.Document,
			Highlights:   hit.Highlights,
		})
	}
	return res, nil
}

func (e *Engine) semanticSearch(ctx context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error) {
	scored, err := e.similar(ctx, repoID, q)
	if err != nil {
		return nil, err
	}

	from, to := page(len(scored), q.Skip, q.Top)
	window := scored[from:to]

	ids := make([]string, len(window))
	for i, s := range window {
		ids[i] = s.ID
	}
	docs, err := e.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := domain.EmptyResults(q.Type, true)
	res.TotalCount = len(scored)
	for _, s := range window {
		doc, ok := docs[s.ID]
		if !ok {
			continue
		}
		res.Results = append(res.Results, domain.SearchResult{
			Score:       s.Score,
			VectorScore: s.Score,
			Document:    *doc,
		})
	}

	all := make([]string, len(scored))
	for i, s := range scored {
		all[i] = s.ID
	}
	if res.Facets, err = e.facets(ctx, all); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) hybridSearch(ctx context.Context, repoID string, q domain.SearchQuery) (*domain.SearchResults, error) {
	lex, err := withRetry(ctx, e.cfg.Retry, e.logger, "keyword candidates", func(ctx context.Context) (*LexicalResult, error) {
		return e.backend.Lexical(ctx, LexicalRequest{
			Text:         q.Text,
			Filters:      q.Filters,
			RepositoryID: repoID,
			Size:         e.cfg.LexicalCandidates,
			Highlight:    true,
		})
	})
	if err != nil {
		return nil, err
	}

	scored, err := e.similar(ctx, repoID, q)
	if errors.Is(err, errEmptyQueryVector) {
		e.logger.Debug("Query has no embedding, ranking by keyword only", "query", q.Text)
		scored, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	ranked := fuse(lex.Hits, scored, e.cfg.Weights)
	from, to := page(len(ranked), q.Skip, q.Top)
	window := ranked[from:to]

	known := make(map[string]*domain.SearchableDocument, len(lex.Hits))
	for _, hit := range lex.Hits {
		known[hit.ID] = hit.Document
	}
	var missing []string
	for _, f := range window {
		if _, ok := known[f.ID]; !ok {
			missing = append(missing, f.ID)
		}
	}
	hydrated, err := e.hydrate(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, doc := range hydrated {
		known[id] = doc
	}

	res := domain.EmptyResults(q.Type, true)
	res.TotalCount = len(ranked)
	for _, f := range window {
		doc, ok := known[f.ID]
		if !ok {
			continue
		}
		res.Results = append(res.Results, domain.SearchResult{
			Score:        f.Score,
			LexicalScore: f.Lexical,
			VectorScore:  f.Vector,
			Document:     *doc,
			Highlights:   f.Highlights,
		})
	}

	all := make([]string, len(ranked))
	for i, f := range ranked {
		all[i] = f.ID
	}
	if res.Facets, err = e.facets(ctx, all); err != nil {
		return nil, err
	}
	return res, nil
}

// errEmptyQueryVector means the embedder produced no vector for the query
// text, e.g. text without tokens.
var errEmptyQueryVector = errors.New("embedder returned an empty vector")

// similar embeds the query text and ranks documents by vector similarity.
func (e *Engine) similar(ctx context.Context, repoID string, q domain.SearchQuery) ([]ScoredID, error) {
	vector, err := withRetry(ctx, e.cfg.Retry, e.logger, "embed query", func(ctx context.Context) ([]float32, error) {
		return e.embedder.GenerateEmbedding(ctx, q.Text)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("failed to embed query: %w", errEmptyQueryVector)
	}

	dims, err := e.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if len(vector) != dims {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d", domain.ErrPermanent, len(vector), dims)
	}

	return withRetry(ctx, e.cfg.Retry, e.logger, "vector search", func(ctx context.Context) ([]ScoredID, error) {
		return e.backend.Similar(ctx, VectorRequest{
			Vector:        vector,
			Filters:       q.Filters,
			RepositoryID:  repoID,
			MinSimilarity: e.cfg.MinSimilarity,
		})
	})
}

func (e *Engine) hydrate(ctx context.Context, ids []string) (map[string]*domain.SearchableDocument, error) {
	return withRetry(ctx, e.cfg.Retry, e.logger, "load documents", func(ctx context.Context) (map[string]*domain.SearchableDocument, error) {
		return e.backend.Hydrate(ctx, ids)
	})
}

func (e *Engine) facets(ctx context.Context, ids []string) (map[string][]domain.FacetValue, error) {
	return withRetry(ctx, e.cfg.Retry, e.logger, "compute facets", func(ctx context.Context) (map[string][]domain.FacetValue, error) {
		return e.backend.Facets(ctx, ids, e.cfg.FacetFields)
	})
}
