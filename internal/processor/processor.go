// Package processor turns repository files into searchable documents.
//
// Each file passes through the filter (extension allow-list, ignored
// directories, binary content), is truncated to the configured maximum, has
// its symbols extracted and its content embedded. Files that are filtered out
// or cannot be embedded are reported as outcomes, never as errors.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sha1n/relic-search/internal/domain"
	"github.com/sha1n/relic-search/internal/embedding"
	"github.com/sha1n/relic-search/internal/source"
	"github.com/sha1n/relic-search/internal/symbols"
)

const (
	// DefaultMaxConcurrentOperations bounds the number of files processed at once.
	DefaultMaxConcurrentOperations = 4

	// DefaultMaxContentLength is the content size kept per document (100KB).
	DefaultMaxContentLength = 100 * 1024
)

// Options configures a Processor.
type Options struct {
	MaxConcurrentOperations int

	// MaxContentLength is in bytes. Zero or less disables truncation.
	MaxContentLength int

	// IndexableExtensions is the allow-list. Nil uses every extension in the
	// language table; an empty non-nil list allows nothing.
	IndexableExtensions []string

	// IgnoredDirectories are directory names excluded at any depth. Nil uses
	// DefaultIgnoredDirectories.
	IgnoredDirectories []string

	ExtractSymbols bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentOperations: DefaultMaxConcurrentOperations,
		MaxContentLength:        DefaultMaxContentLength,
		IndexableExtensions:     KnownExtensions(),
		IgnoredDirectories:      DefaultIgnoredDirectories,
		ExtractSymbols:          true,
	}
}

// FileResult is the outcome of processing one file.
type FileResult struct {
	Path    string
	ID      string
	Outcome domain.Outcome
	Err     error
}

// BatchOutput is the result of ProcessFiles.
type BatchOutput struct {
	// Documents are sorted by ID.
	Documents []*domain.SearchableDocument

	// Results are in input order.
	Results []FileResult
}

// Count returns the number of files with the given outcome.
func (b *BatchOutput) Count(outcome domain.Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Processor converts files into documents.
type Processor struct {
	opts      Options
	filter    *FileFilter
	embedder  embedding.Embedder
	extractor symbols.Extractor
	logger    *slog.Logger
}

// NewProcessor creates a processor. extractor may be nil, in which case the
// regex extractor is used when extraction is enabled. logger may be nil.
func NewProcessor(opts Options, embedder embedding.Embedder, extractor symbols.Extractor, logger *slog.Logger) (*Processor, error) {
	if embedder == nil {
		return nil, errors.New("embedder cannot be nil")
	}
	if opts.MaxConcurrentOperations <= 0 {
		opts.MaxConcurrentOperations = DefaultMaxConcurrentOperations
	}
	if opts.IndexableExtensions == nil {
		opts.IndexableExtensions = KnownExtensions()
	}
	if opts.IgnoredDirectories == nil {
		opts.IgnoredDirectories = DefaultIgnoredDirectories
	}
	if extractor == nil {
		extractor = symbols.NewRegexExtractor(symbols.DefaultMinFrequency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		opts:      opts,
		filter:    NewFileFilter(opts.IndexableExtensions, opts.IgnoredDirectories),
		embedder:  embedder,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// Filter returns the filter used for gatekeeping.
func (p *Processor) Filter() *FileFilter {
	return p.filter
}

// ProcessFile builds the document for file. A nil document with a skip
// outcome and nil error means the file is intentionally not indexed. Errors
// are only returned for cancellation.
func (p *Processor) ProcessFile(ctx context.Context, repo domain.Repository, file source.File, branchName string) (*domain.SearchableDocument, domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.OutcomeCanceled, err
	}

	if outcome := p.filter.Check(file.Path); outcome != "" {
		return nil, outcome, nil
	}
	if IsBinary(file.Content) {
		return nil, domain.OutcomeSkippedBinary, nil
	}

	language := DetectLanguage(file.Path)
	content, truncated := TruncateContent(file.Content, p.opts.MaxContentLength)
	if truncated {
		p.logger.Debug("Truncated file content", "path", file.Path, "size", len(file.Content), "max", p.opts.MaxContentLength)
	}

	codeSymbols := []string{}
	if p.opts.ExtractSymbols {
		extracted, err := p.extractor.Extract(ctx, content, language)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, domain.OutcomeCanceled, ctx.Err()
		case err != nil:
			p.logger.Warn("Symbol extraction failed", "path", file.Path, "error", err)
		default:
			codeSymbols = domain.NormalizeSymbols(extracted)
		}
	}

	vector, err := p.embedder.GenerateEmbedding(ctx, content)
	if err != nil && ctx.Err() != nil {
		return nil, domain.OutcomeCanceled, ctx.Err()
	}
	if err != nil || len(vector) == 0 {
		p.logger.Warn("Embedding failed, skipping file", "path", file.Path, "error", err)
		return nil, domain.OutcomeEmbeddingFailed, nil
	}

	lastModified := file.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now().UTC()
	}

	doc := &domain.SearchableDocument{
		ID:            domain.NewDocumentID(repo.ID, file.Path),
		RepositoryID:  repo.ID,
		FilePath:      file.Path,
		FileName:      filePathBase(file.Path),
		FileExtension: FileExtension(file.Path),
		Language:      language,
		Content:       content,
		ContentVector: vector,
		LineCount:     CountLines(file.Content),
		SizeInBytes:   int64(len(file.Content)),
		LastModified:  lastModified,
		BranchName:    branchName,
		DocumentType:  domain.DocumentTypeSourceFile,
		Metadata: domain.DocumentMetadata{
			RepositoryName:  repo.Name,
			RepositoryOwner: repo.Owner,
			RepositoryURL:   repo.URL,
			CodeSymbols:     codeSymbols,
			CommitSHA:       repo.CommitSHA,
		},
	}
	if truncated {
		doc.Metadata.Truncated = true
		doc.Metadata.OriginalSize = int64(len(file.Content))
	}

	return doc, domain.OutcomeIndexed, nil
}

// ProcessFiles processes files with at most MaxConcurrentOperations in
// flight. Skips and per-file failures never abort the batch. After
// cancellation no further files are scheduled and documents that complete
// afterwards are dropped; the context error is returned with the partial
// output.
func (p *Processor) ProcessFiles(ctx context.Context, repo domain.Repository, files []source.File, branchName string) (*BatchOutput, error) {
	results := make([]FileResult, len(files))
	docs := make([]*domain.SearchableDocument, len(files))

	var g errgroup.Group
	g.SetLimit(p.opts.MaxConcurrentOperations)

	for i, file := range files {
		results[i] = FileResult{Path: file.Path, Outcome: domain.OutcomeCanceled}
		if ctx.Err() != nil {
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			doc, outcome, err := p.ProcessFile(ctx, repo, file, branchName)
			if ctx.Err() != nil {
				doc, outcome = nil, domain.OutcomeCanceled
				err = ctx.Err()
			}

			results[i] = FileResult{Path: file.Path, Outcome: outcome, Err: err}
			if doc != nil {
				results[i].ID = doc.ID
				docs[i] = doc
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchOutput{Results: results}
	for _, doc := range docs {
		if doc != nil {
			out.Documents = append(out.Documents, doc)
		}
	}
	sort.Slice(out.Documents, func(i, j int) bool {
		return out.Documents[i].ID < out.Documents[j].ID
	})

	p.logger.Info("Processed files",
		"repo_id", repo.ID,
		"files", len(files),
		"documents", len(out.Documents),
		"skipped", len(files)-len(out.Documents)-out.Count(domain.OutcomeCanceled),
		"canceled", out.Count(domain.OutcomeCanceled),
	)

	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("processing canceled: %w", err)
	}
	return out, nil
}

// TruncateContent cuts s to at most maxBytes without splitting a UTF-8
// sequence. The cut point depends only on s and maxBytes.
func TruncateContent(s string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, false
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

// CountLines counts newline separated lines. A trailing newline does not
// start a new line and empty content has no lines.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
