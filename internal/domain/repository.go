package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRepositoryURL indicates the URL is not a recognised git remote.
	ErrInvalidRepositoryURL = errors.New("invalid repository URL")

	// Matches: git@github.com:org/repo.git or git@gitlab.com:group/sub/repo.git
	scpURLPattern = regexp.MustCompile(`^[\w.-]+@([^:/]+):(.+?)(?:\.git)?/?$`)

	// Matches: ssh://git@github.com/org/repo.git, https://github.com/org/repo
	schemeURLPattern = regexp.MustCompile(`^(?:ssh|https?|git)://(?:[^@/]+@)?([^/:]+)(?::\d+)?/(.+?)(?:\.git)?/?$`)
)

// Repository describes the source repository documents are indexed from.
type Repository struct {
	ID    string
	Name  string
	Owner string
	URL   string

	// CommitSHA is the revision being indexed, if known.
	CommitSHA string
}

// Validate checks that the repository can partition the index.
func (r Repository) Validate() error {
	if r.ID == "" {
		return errors.New("repository id is required")
	}
	if strings.Contains(r.ID, ":") {
		return fmt.Errorf("repository id %q must not contain ':'", r.ID)
	}
	return nil
}

// ParseRepositoryURL parses an SSH or HTTPS git remote URL and returns the
// host, path and repository name.
//
// Examples:
//   - git@github.com:org/repo.git -> github.com, org/repo, repo
//   - ssh://git@github.com/org/repo.git -> github.com, org/repo, repo
//   - https://gitlab.com/group/sub/repo -> gitlab.com, group/sub/repo, repo
func ParseRepositoryURL(url string) (host, path, name string, err error) {
	url = strings.TrimSpace(url)

	// Scheme URLs first, otherwise "https://host/x" would look like scp syntax
	if m := schemeURLPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], lastPathSegment(m[2]), nil
	}
	if m := scpURLPattern.FindStringSubmatch(url); m != nil {
		return m[1], m[2], lastPathSegment(m[2]), nil
	}
	return "", "", "", fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, url)
}

// RepositoryFromURL builds a descriptor from a git remote URL. The id is
// filesystem safe and never contains ':'.
//
// Examples:
//   - git@github.com:org/repo.git -> id github.com_org_repo, owner org
//   - https://gitlab.com/group/sub/repo -> id gitlab.com_group_sub_repo, owner group/sub
func RepositoryFromURL(url string) (Repository, error) {
	host, path, name, err := ParseRepositoryURL(url)
	if err != nil {
		return Repository{}, err
	}

	owner := ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		owner = path[:i]
	}

	return Repository{
		ID:    SanitizeRepositoryID(host + "/" + path),
		Name:  name,
		Owner: owner,
		URL:   strings.TrimSpace(url),
	}, nil
}

// LocalRepository builds a descriptor for a checkout without a usable remote.
func LocalRepository(dir string) Repository {
	name := filepath.Base(filepath.Clean(dir))
	return Repository{
		ID:   SanitizeRepositoryID(name),
		Name: name,
	}
}

// SanitizeRepositoryID converts s to a filesystem safe repository id.
// Slashes, colons, '@' and whitespace become underscores.
func SanitizeRepositoryID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "ssh://")
	s = strings.TrimPrefix(s, "git@")
	s = strings.TrimSuffix(s, ".git")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '@', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

// RepositoryIDToDisplay converts an id back to a display path. This is the
// approximate inverse of SanitizeRepositoryID.
//
// Examples:
//   - github.com_org_repo -> github.com/org/repo
func RepositoryIDToDisplay(id string) string {
	host, rest, found := strings.Cut(id, "_")
	if !found {
		return id
	}
	return host + "/" + strings.ReplaceAll(rest, "_", "/")
}

func lastPathSegment(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
