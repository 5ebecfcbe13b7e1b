package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/philippgille/chromem-go"

	"github.com/sha1n/relic-search/internal/domain"
)

const (
	// IndexSuffix is the suffix of the lexical index directory.
	IndexSuffix = ".bleve"

	// VectorSuffix is the suffix of the vector store directory.
	VectorSuffix = ".vectors"

	// fieldSource holds the stored JSON document used for hydration.
	fieldSource = "source"

	// Analyzed companions of keyword fields, used for full-text matching.
	fieldFileNameText    = "fileNameText"
	fieldCodeSymbolsText = "metadata.codeSymbolsText"

	// Chromem metadata key for repository scoping.
	vectorMetaRepository = "repositoryId"

	internalDimensionsKey = "vector_dimensions"

	// idPageSize is the page size for id listing queries.
	idPageSize = 1000

	// facetSize is the number of values returned per facet.
	facetSize = 50
)

// BackendConfig configures a BleveBackend.
type BackendConfig struct {
	// Dir holds the index files. Empty keeps everything in memory.
	Dir string

	// Name is the index name.
	Name string

	// CompressVectors gzips persisted vectors.
	CompressVectors bool
}

// BleveBackend keeps lexical data, filters and stored documents in a bleve
// index and content vectors in a sibling chromem collection.
type BleveBackend struct {
	cfg        BackendConfig
	db         *chromem.DB
	index      bleve.Index
	collection *chromem.Collection
	mu         sync.RWMutex
}

// indexedDocument is the shape written to bleve. Field names follow the
// domain field constants.
type indexedDocument struct {
	ID            string          `json:"id"`
	RepositoryID  string          `json:"repositoryId"`
	FilePath      string          `json:"filePath"`
	FileName      string          `json:"fileName"`
	FileExtension string          `json:"fileExtension"`
	Language      string          `json:"language"`
	Content       string          `json:"content"`
	LineCount     int             `json:"lineCount"`
	SizeInBytes   int64           `json:"sizeInBytes"`
	LastModified  time.Time       `json:"lastModified"`
	BranchName    string          `json:"branchName"`
	DocumentType  string          `json:"documentType"`
	Metadata      indexedMetadata `json:"metadata"`
	Source        string          `json:"source"`
}

type indexedMetadata struct {
	RepositoryName  string   `json:"repositoryName"`
	RepositoryOwner string   `json:"repositoryOwner"`
	RepositoryURL   string   `json:"repositoryUrl"`
	CodeSymbols     []string `json:"codeSymbols"`
	SymbolNames     []string `json:"symbolNames"`
}

// NewBleveBackend opens the backend, loading an existing index if present.
func NewBleveBackend(cfg BackendConfig) (*BleveBackend, error) {
	if cfg.Name == "" {
		return nil, errors.New("index name cannot be empty")
	}

	b := &BleveBackend{cfg: cfg}

	if cfg.Dir == "" {
		b.db = chromem.NewDB()
		return b, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(b.vectorPath(), cfg.CompressVectors)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	b.db = db

	index, err := bleve.Open(b.indexPath())
	switch {
	case err == nil:
		b.index = index
		b.collection = db.GetCollection(cfg.Name, rejectEmbedding)
		if b.collection == nil {
			// Lexical index without vectors, e.g. after an interrupted create
			if b.collection, err = db.GetOrCreateCollection(cfg.Name, nil, rejectEmbedding); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("failed to create vector collection: %w", err)
			}
		}
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		// Created on demand
	default:
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	return b, nil
}

func (b *BleveBackend) indexPath() string {
	return filepath.Join(b.cfg.Dir, b.cfg.Name+IndexSuffix)
}

func (b *BleveBackend) vectorPath() string {
	return filepath.Join(b.cfg.Dir, b.cfg.Name+VectorSuffix)
}

// rejectEmbedding is the collection embedding function. Documents always
// carry vectors, so it is never expected to run.
func rejectEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("documents must be added with precomputed embeddings")
}

// CreateIndexMapping creates the bleve mapping for searchable documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	// Content - analyzed for full-text search, stored for highlighting
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FieldContent, contentField)

	// Exact-match fields used by filters and facets
	for _, name := range []string{
		domain.FieldID,
		domain.FieldRepositoryID,
		domain.FieldFilePath,
		domain.FieldFileExtension,
		domain.FieldLanguage,
		domain.FieldBranchName,
		domain.FieldDocumentType,
	} {
		docMapping.AddFieldMappingsAt(name, keywordFieldMapping())
	}

	// File name - keyword for filters plus analyzed text for matching
	fileNameText := bleve.NewTextFieldMapping()
	fileNameText.Name = fieldFileNameText
	fileNameText.Analyzer = standard.Name
	fileNameText.Store = false
	docMapping.AddFieldMappingsAt(domain.FieldFileName, keywordFieldMapping(), fileNameText)

	docMapping.AddFieldMappingsAt(domain.FieldLineCount, bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt(domain.FieldSizeInBytes, bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt(domain.FieldLastModified, bleve.NewDateTimeFieldMapping())

	// Source - stored only, used to rebuild documents
	sourceField := bleve.NewTextFieldMapping()
	sourceField.Index = false
	sourceField.Store = true
	sourceField.IncludeInAll = false
	sourceField.IncludeTermVectors = false
	docMapping.AddFieldMappingsAt(fieldSource, sourceField)

	metadataMapping := bleve.NewDocumentMapping()
	metadataMapping.Dynamic = false
	metadataMapping.AddFieldMappingsAt("repositoryName", keywordFieldMapping())
	metadataMapping.AddFieldMappingsAt("repositoryOwner", keywordFieldMapping())
	metadataMapping.AddFieldMappingsAt("repositoryUrl", keywordFieldMapping())

	// Tagged symbols are exact-match; their names without the kind prefix are
	// analyzed for matching. The standard tokenizer keeps "class:foo" whole.
	metadataMapping.AddFieldMappingsAt("codeSymbols", keywordFieldMapping())
	symbolsText := bleve.NewTextFieldMapping()
	symbolsText.Name = "codeSymbolsText"
	symbolsText.Analyzer = standard.Name
	symbolsText.Store = false
	symbolsText.IncludeInAll = false
	metadataMapping.AddFieldMappingsAt("symbolNames", symbolsText)
	docMapping.AddSubDocumentMapping("metadata", metadataMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

func keywordFieldMapping() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = keyword.Name
	f.Store = false
	f.IncludeTermVectors = false
	f.IncludeInAll = false
	return f
}

// Exists reports whether the index has been created.
func (b *BleveBackend) Exists(_ context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index != nil, nil
}

// Create creates the lexical index and vector collection.
func (b *BleveBackend) Create(_ context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: vector dimensions must be positive, got %d", domain.ErrPermanent, dimensions)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		return nil
	}

	var (
		index bleve.Index
		err   error
	)
	if b.cfg.Dir == "" {
		index, err = bleve.NewMemOnly(CreateIndexMapping())
	} else {
		index, err = bleve.New(b.indexPath(), CreateIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := index.SetInternal([]byte(internalDimensionsKey), []byte(strconv.Itoa(dimensions))); err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to record vector dimensions: %w", err)
	}

	collection, err := b.db.GetOrCreateCollection(b.cfg.Name, nil, rejectEmbedding)
	if err != nil {
		_ = index.Close()
		return fmt.Errorf("failed to create vector collection: %w", err)
	}

	b.index = index
	b.collection = collection
	slog.Info("Created search index", "name", b.cfg.Name, "dimensions", dimensions, "in_memory", b.cfg.Dir == "")
	return nil
}

// Drop removes the index and vector collection.
func (b *BleveBackend) Drop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		if err := b.index.Close(); err != nil {
			slog.Warn("Failed to close index before drop", "error", err)
		}
		b.index = nil
	}
	if b.cfg.Dir != "" {
		if err := os.RemoveAll(b.indexPath()); err != nil {
			return fmt.Errorf("failed to remove index: %w", err)
		}
	}

	if b.db.GetCollection(b.cfg.Name, rejectEmbedding) != nil {
		if err := b.db.DeleteCollection(b.cfg.Name); err != nil {
			return fmt.Errorf("failed to delete vector collection: %w", err)
		}
	}
	b.collection = nil

	slog.Info("Dropped search index", "name", b.cfg.Name)
	return nil
}

// Dimensions returns the vector dimension recorded at creation.
func (b *BleveBackend) Dimensions(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return 0, ErrIndexMissing
	}
	raw, err := b.index.GetInternal([]byte(internalDimensionsKey))
	if err != nil {
		return 0, fmt.Errorf("failed to read vector dimensions: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt vector dimensions %q: %w", raw, err)
	}
	return n, nil
}

// Upsert writes vectors first, then the lexical batch. A document is only
// visible to searches once both writes succeed.
func (b *BleveBackend) Upsert(ctx context.Context, docs []*domain.SearchableDocument) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return ErrIndexMissing
	}

	vectors := make([]chromem.Document, 0, len(docs))
	batch := b.index.NewBatch()

	for _, doc := range docs {
		embedding := make([]float32, len(doc.ContentVector))
		copy(embedding, doc.ContentVector)
		vectors = append(vectors, chromem.Document{
			ID:        doc.ID,
			Metadata:  map[string]string{vectorMetaRepository: doc.RepositoryID},
			Embedding: embedding,
		})

		indexed, err := toIndexed(doc)
		if err != nil {
			return fmt.Errorf("%w: document %s: %v", domain.ErrPermanent, doc.ID, err)
		}
		if err := batch.Index(doc.ID, indexed); err != nil {
			return fmt.Errorf("%w: document %s: %v", domain.ErrPermanent, doc.ID, err)
		}
	}

	if err := b.collection.AddDocuments(ctx, vectors, 1); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	return nil
}

func toIndexed(doc *domain.SearchableDocument) (*indexedDocument, error) {
	stored := *doc
	stored.ContentVector = nil
	source, err := json.Marshal(&stored)
	if err != nil {
		return nil, err
	}

	symbols := doc.Metadata.CodeSymbols
	if symbols == nil {
		symbols = []string{}
	}

	return &indexedDocument{
		ID:            doc.ID,
		RepositoryID:  doc.RepositoryID,
		FilePath:      doc.FilePath,
		FileName:      doc.FileName,
		FileExtension: doc.FileExtension,
		Language:      doc.Language,
		Content:       doc.Content,
		LineCount:     doc.LineCount,
		SizeInBytes:   doc.SizeInBytes,
		LastModified:  doc.LastModified.UTC(),
		BranchName:    doc.BranchName,
		DocumentType:  doc.DocumentType,
		Metadata: indexedMetadata{
			RepositoryName:  doc.Metadata.RepositoryName,
			RepositoryOwner: doc.Metadata.RepositoryOwner,
			RepositoryURL:   doc.Metadata.RepositoryURL,
			CodeSymbols:     symbols,
			SymbolNames:     symbolNames(symbols),
		},
		Source: string(source),
	}, nil
}

// symbolNames strips the kind prefix, "class:Foo" becomes "Foo".
func symbolNames(symbols []string) []string {
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, name, ok := strings.Cut(s, ":"); ok {
			s = name
		}
		if s != "" {
			names = append(names, s)
		}
	}
	return names
}

// Delete removes documents by id. Unknown ids are ignored.
func (b *BleveBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return ErrIndexMissing
	}

	batch := b.index.NewBatch()
	var vectorIDs []string
	for _, id := range ids {
		batch.Delete(id)
		if _, err := b.collection.GetByID(ctx, id); err == nil {
			vectorIDs = append(vectorIDs, id)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("batch delete failed: %w", err)
	}
	if len(vectorIDs) > 0 {
		if err := b.collection.Delete(ctx, nil, nil, vectorIDs...); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}
	return nil
}

// IDs lists the ids of a repository's documents in ascending order.
func (b *BleveBackend) IDs(ctx context.Context, repositoryID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return nil, ErrIndexMissing
	}
	return b.matchingIDs(ctx, repositoryQuery(repositoryID))
}

// matchingIDs pages through every document matching q in id order.
func (b *BleveBackend) matchingIDs(ctx context.Context, q query.Query) ([]string, error) {
	ids := []string{}
	var after []string

	for {
		req := bleve.NewSearchRequestOptions(q, idPageSize, 0, false)
		req.SortBy([]string{"_id"})
		if after != nil {
			req.SearchAfter = after
		}

		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("id query failed: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < idPageSize {
			return ids, nil
		}
		after = []string{res.Hits[len(res.Hits)-1].ID}
	}
}

// Get returns a stored document with its vector.
func (b *BleveBackend) Get(ctx context.Context, id string) (*domain.SearchableDocument, error) {
	docs, err := b.Hydrate(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	doc, ok := docs[id]
	if !ok {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.collection != nil {
		if v, err := b.collection.GetByID(ctx, id); err == nil {
			doc.ContentVector = v.Embedding
		}
	}
	return doc, nil
}

// Count counts documents of a repository, or all documents.
func (b *BleveBackend) Count(ctx context.Context, repositoryID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return 0, ErrIndexMissing
	}
	if repositoryID == "" {
		n, err := b.index.DocCount()
		if err != nil {
			return 0, fmt.Errorf("doc count failed: %w", err)
		}
		return int(n), nil
	}

	req := bleve.NewSearchRequestOptions(repositoryQuery(repositoryID), 0, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return int(res.Total), nil
}

// Lexical runs a full-text query over content, symbols (boost 5) and file
// name (boost 2).
func (b *BleveBackend) Lexical(ctx context.Context, r LexicalRequest) (*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return nil, ErrIndexMissing
	}

	q, err := buildQuery(textQuery(r.Text), r.RepositoryID, r.Filters)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(q, r.Size, r.From, false)
	req.SortBy([]string{"-_score", "_id"})
	req.Fields = []string{fieldSource}
	if r.Highlight && strings.TrimSpace(r.Text) != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField(domain.FieldContent)
	}
	for _, field := range r.FacetFields {
		req.AddFacet(field, bleve.NewFacetRequest(field, facetSize))
	}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &LexicalResult{
		Total:  int(res.Total),
		Hits:   make([]LexicalHit, 0, len(res.Hits)),
		Facets: convertFacets(res.Facets, r.FacetFields),
	}
	for _, hit := range res.Hits {
		doc, err := decodeSource(hit.Fields[fieldSource])
		if err != nil {
			slog.Warn("Skipping hit with unreadable source", "id", hit.ID, "error", err)
			continue
		}
		out.Hits = append(out.Hits, LexicalHit{
			ID:         hit.ID,
			Score:      hit.Score,
			Highlights: hit.Fragments[domain.FieldContent],
			Document:   doc,
		})
	}
	return out, nil
}

// Similar ranks every vector by cosine similarity to the request vector.
// Filters other than the repository are resolved through the lexical index so
// both retrieval paths share one filter semantics.
func (b *BleveBackend) Similar(ctx context.Context, r VectorRequest) ([]ScoredID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return nil, ErrIndexMissing
	}

	n := b.collection.Count()
	if n == 0 {
		return []ScoredID{}, nil
	}

	var allowed map[string]struct{}
	if len(r.Filters) > 0 {
		q, err := buildQuery(bleve.NewMatchAllQuery(), r.RepositoryID, r.Filters)
		if err != nil {
			return nil, err
		}
		ids, err := b.matchingIDs(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []ScoredID{}, nil
		}
		allowed = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
	}

	var where map[string]string
	if r.RepositoryID != "" {
		where = map[string]string{vectorMetaRepository: r.RepositoryID}
	}

	results, err := b.collection.QueryEmbedding(ctx, r.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	scored := make([]ScoredID, 0, len(results))
	for _, res := range results {
		if allowed != nil {
			if _, ok := allowed[res.ID]; !ok {
				continue
			}
		}
		score := float64(res.Similarity)
		if score <= r.MinSimilarity {
			continue
		}
		scored = append(scored, ScoredID{ID: res.ID, Score: score})
	}
	sortScored(scored)
	return scored, nil
}

// Hydrate loads stored documents by id.
func (b *BleveBackend) Hydrate(ctx context.Context, ids []string) (map[string]*domain.SearchableDocument, error) {
	docs := make(map[string]*domain.SearchableDocument, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return nil, ErrIndexMissing
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(ids), len(ids), 0, false)
	req.Fields = []string{fieldSource}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("document lookup failed: %w", err)
	}

	for _, hit := range res.Hits {
		doc, err := decodeSource(hit.Fields[fieldSource])
		if err != nil {
			slog.Warn("Skipping document with unreadable source", "id", hit.ID, "error", err)
			continue
		}
		docs[hit.ID] = doc
	}
	return docs, nil
}

// Facets counts keyword field values over a document set.
func (b *BleveBackend) Facets(ctx context.Context, ids []string, fields []string) (map[string][]domain.FacetValue, error) {
	if len(ids) == 0 || len(fields) == 0 {
		return convertFacets(nil, fields), nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil {
		return nil, ErrIndexMissing
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(ids), 0, 0, false)
	for _, field := range fields {
		req.AddFacet(field, bleve.NewFacetRequest(field, facetSize))
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("facet query failed: %w", err)
	}
	return convertFacets(res.Facets, fields), nil
}

// Close releases the lexical index. Vectors are persisted on write.
func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

func decodeSource(raw any) (*domain.SearchableDocument, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("source field missing")
	}
	var doc domain.SearchableDocument
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// convertFacets flattens bleve facet results ordered by count descending
// then value ascending. Every requested field is present in the output.
func convertFacets(results bsearch.FacetResults, fields []string) map[string][]domain.FacetValue {
	out := make(map[string][]domain.FacetValue, len(fields))
	for _, field := range fields {
		values := []domain.FacetValue{}
		if fr, ok := results[field]; ok && fr != nil && fr.Terms != nil {
			for _, term := range fr.Terms.Terms() {
				values = append(values, domain.FacetValue{Value: term.Term, Count: term.Count})
			}
		}
		sort.SliceStable(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Value < values[j].Value
		})
		out[field] = values
	}
	return out
}

func sortScored(scored []ScoredID) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
}
