package source

import (
	"context"
	"log/slog"

	"github.com/sha1n/relic-search/internal/domain"
)

// DefaultBranch is reported for checkouts without git metadata.
const DefaultBranch = "main"

// Checkout describes the revision of a local repository directory.
type Checkout struct {
	Dir        string
	Repository domain.Repository
	Branch     string
	IsGit      bool
}

// Inspect resolves the repository descriptor and branch of dir. Directories
// that are not git work trees, or have no parseable origin, are described by
// their directory name.
func Inspect(ctx context.Context, git *GitClient, dir string) Checkout {
	co := Checkout{
		Dir:        dir,
		Repository: domain.LocalRepository(dir),
		Branch:     DefaultBranch,
	}

	if git == nil || !git.IsGitRepository(ctx, dir) {
		return co
	}
	co.IsGit = true

	if url, err := git.RemoteURL(ctx, dir); err == nil {
		if repo, err := domain.RepositoryFromURL(url); err == nil {
			co.Repository = repo
		} else {
			slog.Warn("Unrecognised origin URL, using directory name", "url", url, "error", err)
		}
	}

	if branch, err := git.CurrentBranch(ctx, dir); err == nil && branch != "" && branch != "HEAD" {
		co.Branch = branch
	}

	if sha, err := git.HeadCommit(ctx, dir); err == nil {
		co.Repository.CommitSHA = sha
	}

	return co
}
