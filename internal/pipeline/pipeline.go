// Package pipeline runs repository indexing: it reads files from a source
// connector, processes them into documents and submits them to the search
// engine while keeping the repository's index status current.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sha1n/relic-search/internal/domain"
	"github.com/sha1n/relic-search/internal/processor"
	"github.com/sha1n/relic-search/internal/search"
	"github.com/sha1n/relic-search/internal/source"
)

// DefaultLockTimeout bounds the wait for another run of the same repository.
const DefaultLockTimeout = 5 * time.Minute

// Options configures a Pipeline.
type Options struct {
	// Incremental keeps existing documents and removes only stale ones.
	// Otherwise every run deletes the repository's documents first.
	Incremental bool

	// BatchSize is the number of files processed and submitted together.
	BatchSize int

	// LockDir holds per-repository run locks. Empty disables locking.
	LockDir     string
	LockTimeout time.Duration

	// MaxFileSize is passed to directory connectors.
	MaxFileSize int64
}

// RunResult summarizes an indexing run.
type RunResult struct {
	Repository  domain.Repository
	Branch      string
	Status      domain.IndexStatus
	Incremental bool
	Files       int
	Indexed     int
	Deleted     int
	Outcomes    map[domain.Outcome]int
	Failed      []domain.FailedDocument
	Duration    time.Duration
}

// Pipeline orchestrates indexing runs.
type Pipeline struct {
	engine    *search.Engine
	processor *processor.Processor
	git       *source.GitClient
	opts      Options
	logger    *slog.Logger
}

// New creates a pipeline. A nil git client disables git metadata and
// change detection.
func New(engine *search.Engine, proc *processor.Processor, git *source.GitClient, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if proc == nil {
		return nil, errors.New("processor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = search.DefaultMaxBatchSize
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}

	return &Pipeline{
		engine:    engine,
		processor: proc,
		git:       git,
		opts:      opts,
		logger:    logger,
	}, nil
}

// IndexDirectory indexes a local checkout. The repository identity, branch
// and commit come from git when available.
func (p *Pipeline) IndexDirectory(ctx context.Context, dir string) (*RunResult, error) {
	checkout := source.Inspect(ctx, p.git, dir)

	connectorOpts := []source.DirectoryOption{source.WithSkipDir(p.processor.Filter().IsIgnoredDir)}
	if p.opts.MaxFileSize > 0 {
		connectorOpts = append(connectorOpts, source.WithMaxFileSize(p.opts.MaxFileSize))
	}
	connector, err := source.NewDirectoryConnector(dir, connectorOpts...)
	if err != nil {
		return nil, err
	}

	var changed changeSet
	if checkout.IsGit && p.opts.Incremental {
		changed = p.changedSince(ctx, checkout)
	}

	return p.run(ctx, checkout.Repository, checkout.Branch, connector, changed)
}

// Run indexes every file of a connector.
func (p *Pipeline) Run(ctx context.Context, repo domain.Repository, branch string, connector source.Connector) (*RunResult, error) {
	return p.run(ctx, repo, branch, connector, nil)
}

// changeSet is the set of paths changed since the last indexed commit. A nil
// set means every file is processed.
type changeSet map[string]struct{}

// changedSince diffs HEAD against the last indexed commit. Any failure falls
// back to processing every file.
func (p *Pipeline) changedSince(ctx context.Context, checkout source.Checkout) changeSet {
	head := checkout.Repository.CommitSHA
	state, ok := p.engine.Tracker().Source(checkout.Repository.ID)
	if !ok || head == "" || state.LastCommit == "" || state.Status.Status != domain.StatusCompleted {
		return nil
	}
	if state.LastCommit == head {
		return changeSet{}
	}

	files, err := p.git.ChangedFiles(ctx, checkout.Dir, state.LastCommit, head)
	if err != nil {
		p.logger.Warn("Change detection failed, processing all files", "repo_id", checkout.Repository.ID, "error", err)
		return nil
	}

	set := make(changeSet, len(files))
	for _, f := range files {
		set[f] = struct{}{}
	}
	p.logger.Info("Detected changed files", "repo_id", checkout.Repository.ID, "from", state.LastCommit, "to", head, "changed", len(set))
	return set
}

func (p *Pipeline) run(ctx context.Context, repo domain.Repository, branch string, connector source.Connector, changed changeSet) (*RunResult, error) {
	start := time.Now()
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	if p.opts.LockDir != "" {
		lock := NewRunLock(p.opts.LockDir, repo.ID)
		if err := lock.Acquire(ctx, p.opts.LockTimeout); err != nil {
			return nil, fmt.Errorf("failed to lock repository %s: %w", repo.ID, err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				p.logger.Warn("Failed to release run lock", "repo_id", repo.ID, "error", err)
			}
		}()
	}

	if err := p.engine.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare index: %w", err)
	}

	files, err := connector.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	// Files outside the change set keep their existing documents
	toProcess := files
	if changed != nil {
		toProcess = make([]source.File, 0, len(changed))
		for _, f := range files {
			if _, ok := changed[f.Path]; ok {
				toProcess = append(toProcess, f)
			}
		}
	}

	tracker := p.engine.Tracker()
	status, err := tracker.Start(repo.ID, len(toProcess), p.opts.Incremental)
	if err != nil {
		return nil, err
	}
	runID := status.RunID

	result := &RunResult{
		Repository:  repo,
		Branch:      branch,
		Incremental: p.opts.Incremental,
		Files:       len(files),
		Outcomes:    make(map[domain.Outcome]int),
		Failed:      []domain.FailedDocument{},
	}

	p.logger.Info("Indexing repository", "repo_id", repo.ID, "branch", branch, "files", len(files),
		"to_process", len(toProcess), "incremental", p.opts.Incremental, "run_id", runID)

	runErr := p.index(ctx, repo, branch, files, toProcess, runID, result)

	if runErr != nil {
		result.Status, _ = tracker.Fail(repo.ID, runID, runErr)
		result.Duration = time.Since(start)
		return result, runErr
	}

	result.Status, err = tracker.Complete(repo.ID, runID, result.Indexed)
	if err != nil {
		return result, err
	}
	if err := tracker.SetSource(repo.ID, repo.URL, branch, repo.CommitSHA); err != nil {
		p.logger.Warn("Failed to record repository source", "repo_id", repo.ID, "error", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete", "repo_id", repo.ID, "indexed", result.Indexed, "deleted", result.Deleted,
		"failed", len(result.Failed), "duration", result.Duration)
	return result, nil
}

// index performs the body of a run. A non-nil error fails the run.
func (p *Pipeline) index(ctx context.Context, repo domain.Repository, branch string, files, toProcess []source.File, runID string, result *RunResult) error {
	if !p.opts.Incremental {
		deleted, err := p.engine.DeleteRepositoryDocuments(ctx, repo.ID)
		if err != nil {
			return fmt.Errorf("failed to clear repository: %w", err)
		}
		result.Deleted = deleted
	}

	// Ids that remain valid in an incremental run: unprocessed files and
	// processed files that still exist, even if this run failed to embed them.
	keep := make(map[string]struct{}, len(files))
	processed := make(map[string]struct{}, len(toProcess))
	for _, f := range toProcess {
		processed[f.Path] = struct{}{}
	}
	for _, f := range files {
		if _, ok := processed[f.Path]; !ok {
			keep[domain.NewDocumentID(repo.ID, f.Path)] = struct{}{}
		}
	}

	for start := 0; start < len(toProcess); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("indexing canceled: %w", err)
		}

		chunk := toProcess[start:min(start+p.opts.BatchSize, len(toProcess))]
		out, err := p.processor.ProcessFiles(ctx, repo, chunk, branch)
		for _, r := range out.Results {
			result.Outcomes[r.Outcome]++
			switch r.Outcome {
			case domain.OutcomeEmbeddingFailed, domain.OutcomeFailed:
				keep[domain.NewDocumentID(repo.ID, r.Path)] = struct{}{}
			}
		}
		if err != nil {
			return err
		}

		// Nothing computed after cancellation reaches the index
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("indexing canceled: %w", err)
		}

		batch, err := p.engine.IndexDocumentsBatch(ctx, out.Documents)
		var partial *domain.PartialBatchError
		switch {
		case errors.As(err, &partial):
			result.Failed = append(result.Failed, partial.Failed...)
			for _, f := range partial.Failed {
				keep[f.ID] = struct{}{}
			}
		case err != nil:
			return err
		}
		for _, id := range batch.Indexed {
			keep[id] = struct{}{}
		}

		result.Indexed += len(batch.Indexed)
		p.engine.Tracker().Progress(repo.ID, runID, result.Indexed, 0)
	}

	if len(result.Failed) > 0 && result.Indexed == 0 {
		return fmt.Errorf("all %d documents failed to index: %w", len(result.Failed), errors.Join(errorsOf(result.Failed)...))
	}

	if p.opts.Incremental {
		deleted, err := p.removeStale(ctx, repo.ID, keep)
		if err != nil {
			return err
		}
		result.Deleted = deleted
	}
	return nil
}

// removeStale deletes the repository's documents that are not in keep.
func (p *Pipeline) removeStale(ctx context.Context, repoID string, keep map[string]struct{}) (int, error) {
	existing, err := p.engine.ListDocumentIDs(ctx, repoID)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	sort.Strings(stale)

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("indexing canceled: %w", err)
	}
	if err := p.engine.DeleteDocuments(ctx, stale); err != nil {
		return 0, fmt.Errorf("failed to remove stale documents: %w", err)
	}
	p.logger.Info("Removed stale documents", "repo_id", repoID, "count", len(stale))
	return len(stale), nil
}

func errorsOf(failed []domain.FailedDocument) []error {
	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		errs = append(errs, f.Err)
	}
	return errs
}
