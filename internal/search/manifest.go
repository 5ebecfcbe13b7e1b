package search

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sha1n/relic-search/internal/domain"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the default manifest filename
	ManifestFilename = "manifest.json"
)

// Manifest stores the indexing state of all repositories.
type Manifest struct {
	Version int                  `json:"version"`
	Repos   map[string]RepoState `json:"repos"`
	mu      sync.RWMutex         `json:"-"`
}

// RepoState stores the indexing state of a single repository.
type RepoState struct {
	Status     domain.IndexStatus `json:"status"`
	URL        string             `json:"url,omitempty"`
	Branch     string             `json:"branch,omitempty"`
	LastCommit string             `json:"last_commit,omitempty"`
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Repos:   make(map[string]RepoState),
	}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.Repos == nil {
		manifest.Repos = make(map[string]RepoState)
	}
	if manifest.Version > ManifestVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", manifest.Version, ManifestVersion)
	}

	return &manifest, nil
}

// Save writes the manifest to disk atomically (temp file + rename).
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}

	return nil
}

// RepoState returns the state of a repository.
func (m *Manifest) RepoState(repoID string) (RepoState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Repos[repoID]
	return state, ok
}

// SetRepoState replaces the state of a repository.
func (m *Manifest) SetRepoState(repoID string, state RepoState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Repos[repoID] = state
}

// UpdateRepoState applies fn to the state of a repository, creating it if
// needed.
func (m *Manifest) UpdateRepoState(repoID string, fn func(*RepoState)) RepoState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.Repos[repoID]
	fn(&state)
	m.Repos[repoID] = state
	return state
}

// RemoveRepo removes a repository from the manifest.
func (m *Manifest) RemoveRepo(repoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Repos, repoID)
}

// RepoIDs returns all repository IDs in the manifest, sorted.
func (m *Manifest) RepoIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.Repos))
	for id := range m.Repos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReposWithErrors returns the error messages of repositories in ERROR state.
func (m *Manifest) ReposWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for repoID, state := range m.Repos {
		if state.Status.Status == domain.StatusError {
			result[repoID] = state.Status.ErrorMessage
		}
	}
	return result
}
