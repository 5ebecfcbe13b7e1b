package search

import (
	"context"
	"sync"

	"github.com/sha1n/relic-search/internal/domain"
)

// fakeBackend is a scriptable Backend for engine tests. Upserts consume
// upsertErrs in order; nil entries and an exhausted list succeed.
type fakeBackend struct {
	exists     bool
	dims       int
	countErr   error
	upsertErrs []error
	onLexical  func() error

	upsertCalls int
	chunkSizes  []int
	mu          sync.Mutex
}

func (f *fakeBackend) Exists(context.Context) (bool, error) { return f.exists, nil }

func (f *fakeBackend) Create(_ context.Context, dims int) error {
	f.exists = true
	f.dims = dims
	return nil
}

func (f *fakeBackend) Drop(context.Context) error {
	f.exists = false
	return nil
}

func (f *fakeBackend) Dimensions(context.Context) (int, error) {
	if !f.exists {
		return 0, ErrIndexMissing
	}
	return f.dims, nil
}

func (f *fakeBackend) Upsert(_ context.Context, docs []*domain.SearchableDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upsertCalls++
	f.chunkSizes = append(f.chunkSizes, len(docs))
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) Delete(context.Context, []string) error { return nil }

func (f *fakeBackend) IDs(context.Context, string) ([]string, error) { return []string{}, nil }

func (f *fakeBackend) Get(context.Context, string) (*domain.SearchableDocument, error) {
	return nil, nil
}

func (f *fakeBackend) Count(context.Context, string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return 0, nil
}

func (f *fakeBackend) Lexical(context.Context, LexicalRequest) (*LexicalResult, error) {
	if f.onLexical != nil {
		if err := f.onLexical(); err != nil {
			return nil, err
		}
	}
	return &LexicalResult{Hits: []LexicalHit{}, Facets: map[string][]domain.FacetValue{}}, nil
}

func (f *fakeBackend) Similar(context.Context, VectorRequest) ([]ScoredID, error) {
	return []ScoredID{}, nil
}

func (f *fakeBackend) Hydrate(context.Context, []string) (map[string]*domain.SearchableDocument, error) {
	return map[string]*domain.SearchableDocument{}, nil
}

func (f *fakeBackend) Facets(context.Context, []string, []string) (map[string][]domain.FacetValue, error) {
	return map[string][]domain.FacetValue{}, nil
}

func (f *fakeBackend) Close() error { return nil }
