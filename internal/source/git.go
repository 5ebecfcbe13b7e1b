package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor executes commands using os/exec.
type DefaultExecutor struct{}

// Run executes a command and returns its standard output.
func (e *DefaultExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// GitClient reads revision metadata from a local checkout.
type GitClient struct {
	executor CommandExecutor
}

// NewGitClient creates a GitClient with the default command executor.
func NewGitClient() *GitClient {
	return &GitClient{executor: &DefaultExecutor{}}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor.
func NewGitClientWithExecutor(executor CommandExecutor) *GitClient {
	return &GitClient{executor: executor}
}

// IsGitRepository checks if the given directory is inside a git work tree.
func (g *GitClient) IsGitRepository(ctx context.Context, dir string) bool {
	_, err := g.executor.Run(ctx, dir, "git", "rev-parse", "--git-dir")
	return err == nil
}

// HeadCommit returns the current HEAD commit SHA.
func (g *GitClient) HeadCommit(ctx context.Context, dir string) (string, error) {
	output, err := g.executor.Run(ctx, dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CurrentBranch returns the checked out branch, or "HEAD" when detached.
func (g *GitClient) CurrentBranch(ctx context.Context, dir string) (string, error) {
	output, err := g.executor.Run(ctx, dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// RemoteURL returns the URL of the origin remote.
func (g *GitClient) RemoteURL(ctx context.Context, dir string) (string, error) {
	output, err := g.executor.Run(ctx, dir, "git", "config", "--get", "remote.origin.url")
	if err != nil {
		return "", fmt.Errorf("git config failed: %w", err)
	}
	url := strings.TrimSpace(string(output))
	if url == "" {
		return "", fmt.Errorf("no origin remote configured")
	}
	return url, nil
}

// ChangedFiles returns the paths changed between two commits, relative to
// the repository root.
func (g *GitClient) ChangedFiles(ctx context.Context, dir, fromCommit, toCommit string) ([]string, error) {
	output, err := g.executor.Run(ctx, dir, "git", "diff",
		"--name-only",
		fromCommit+".."+toCommit,
	)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
