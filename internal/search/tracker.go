package search

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sha1n/relic-search/internal/domain"
)

var (
	// ErrRunActive is returned when starting a run for a repository that
	// already has one.
	ErrRunActive = errors.New("indexing run already active")

	// ErrStaleRun is returned when finishing a run that is no longer current.
	ErrStaleRun = errors.New("indexing run is not current")
)

// interruptedMessage is recorded for runs found active at startup.
const interruptedMessage = "indexing run was interrupted"

// Tracker owns the per-repository IndexStatus and enforces the status state
// machine. Transitions are persisted to the manifest; progress updates stay in
// memory.
type Tracker struct {
	manifest *Manifest
	path     string
	started  map[string]time.Time
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewTracker loads the manifest at path. An empty path keeps state in memory.
// Runs left active by a previous process are moved to ERROR.
func NewTracker(path string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	manifest := NewManifest()
	if path != "" {
		var err error
		if manifest, err = LoadManifest(path); err != nil {
			return nil, err
		}
	}

	t := &Tracker{
		manifest: manifest,
		path:     path,
		started:  make(map[string]time.Time),
		now:      time.Now,
		logger:   logger,
	}

	recovered := false
	for _, id := range manifest.RepoIDs() {
		state, _ := manifest.RepoState(id)
		if state.Status.Status.IsRunning() {
			state.Status.Status = domain.StatusError
			state.Status.ErrorMessage = interruptedMessage
			state.Status.EstimatedCompletion = nil
			manifest.SetRepoState(id, state)
			recovered = true
			logger.Warn("Recovered interrupted indexing run", "repository", id, "run_id", state.Status.RunID)
		}
	}
	if recovered {
		if err := t.persist(); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Start begins a run. A completed repository refreshes on incremental runs;
// any other case starts IN_PROGRESS.
func (t *Tracker) Start(repoID string, total int, incremental bool) (domain.IndexStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, _ := t.manifest.RepoState(repoID)
	current := state.Status.Status
	if current == "" {
		current = domain.StatusNotStarted
	}
	if current.IsRunning() {
		return state.Status, fmt.Errorf("%w: repository %s (run %s)", ErrRunActive, repoID, state.Status.RunID)
	}

	next := domain.StatusInProgress
	if current == domain.StatusCompleted && incremental {
		next = domain.StatusRefreshing
	}
	if err := domain.ValidateTransition(current, next); err != nil {
		return state.Status, err
	}

	state.Status = domain.IndexStatus{
		RepositoryID:   repoID,
		RunID:          uuid.NewString(),
		Status:         next,
		TotalDocuments: total,
		LastIndexed:    state.Status.LastIndexed,
	}
	t.manifest.SetRepoState(repoID, state)
	t.started[repoID] = t.now()

	t.logger.Info("Indexing run started", "repository", repoID, "run_id", state.Status.RunID, "status", next, "total", total)
	return state.Status, t.persist()
}

// Progress records documents indexed by the current run. Updates for another
// run, or that would decrease the count, are ignored.
func (t *Tracker) Progress(repoID, runID string, indexed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.manifest.RepoState(repoID)
	if !ok || state.Status.RunID != runID || !state.Status.Status.IsRunning() {
		return
	}
	if indexed < state.Status.DocumentsIndexed {
		return
	}

	state.Status.DocumentsIndexed = indexed
	if total > 0 {
		state.Status.TotalDocuments = total
	}
	state.Status.EstimatedCompletion = t.estimate(repoID, indexed, state.Status.TotalDocuments)
	t.manifest.SetRepoState(repoID, state)
}

// estimate extrapolates the completion time from the rate so far.
func (t *Tracker) estimate(repoID string, indexed, total int) *time.Time {
	started, ok := t.started[repoID]
	if !ok || indexed <= 0 || total <= indexed {
		return nil
	}
	now := t.now()
	perDoc := now.Sub(started) / time.Duration(indexed)
	eta := now.Add(perDoc * time.Duration(total-indexed))
	return &eta
}

// Complete ends the current run successfully.
func (t *Tracker) Complete(repoID, runID string, indexed int) (domain.IndexStatus, error) {
	return t.finish(repoID, runID, domain.StatusCompleted, func(s *domain.IndexStatus) {
		if indexed > s.DocumentsIndexed {
			s.DocumentsIndexed = indexed
		}
		now := t.now()
		s.LastIndexed = &now
		s.ErrorMessage = ""
	})
}

// Fail ends the current run with an error.
func (t *Tracker) Fail(repoID, runID string, cause error) (domain.IndexStatus, error) {
	return t.finish(repoID, runID, domain.StatusError, func(s *domain.IndexStatus) {
		if cause != nil {
			s.ErrorMessage = cause.Error()
		}
	})
}

func (t *Tracker) finish(repoID, runID string, next domain.Status, apply func(*domain.IndexStatus)) (domain.IndexStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.manifest.RepoState(repoID)
	if !ok || state.Status.RunID != runID {
		return state.Status, fmt.Errorf("%w: repository %s run %s", ErrStaleRun, repoID, runID)
	}
	if err := domain.ValidateTransition(state.Status.Status, next); err != nil {
		return state.Status, err
	}

	state.Status.Status = next
	state.Status.EstimatedCompletion = nil
	apply(&state.Status)
	t.manifest.SetRepoState(repoID, state)
	delete(t.started, repoID)

	t.logger.Info("Indexing run finished", "repository", repoID, "run_id", runID, "status", next,
		"documents", state.Status.DocumentsIndexed, "error", state.Status.ErrorMessage)
	return state.Status, t.persist()
}

// Status returns the tracked status of a repository.
func (t *Tracker) Status(repoID string) (domain.IndexStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.manifest.RepoState(repoID)
	return state.Status, ok
}

// SetSource records where the indexed content came from. The commit is the
// base of the next incremental diff.
func (t *Tracker) SetSource(repoID, url, branch, commit string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.UpdateRepoState(repoID, func(s *RepoState) {
		s.URL = url
		s.Branch = branch
		s.LastCommit = commit
	})
	return t.persist()
}

// Source returns the recorded source of a repository.
func (t *Tracker) Source(repoID string) (RepoState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manifest.RepoState(repoID)
}

// Remove forgets a repository.
func (t *Tracker) Remove(repoID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifest.RemoveRepo(repoID)
	delete(t.started, repoID)
	return t.persist()
}

// Repositories returns the ids of all tracked repositories, sorted.
func (t *Tracker) Repositories() []string {
	return t.manifest.RepoIDs()
}

// Failed returns the error messages of repositories whose last run failed.
func (t *Tracker) Failed() map[string]string {
	return t.manifest.ReposWithErrors()
}

func (t *Tracker) persist() error {
	if t.path == "" {
		return nil
	}
	return t.manifest.Save(t.path)
}
