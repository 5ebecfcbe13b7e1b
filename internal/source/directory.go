package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the largest file read from disk (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DirectoryConnector reads files from a local checkout.
type DirectoryConnector struct {
	root        string
	maxFileSize int64
	skipDir     func(name string) bool
}

// DirectoryOption configures a DirectoryConnector.
type DirectoryOption func(*DirectoryConnector)

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) DirectoryOption {
	return func(c *DirectoryConnector) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// WithSkipDir prunes directories for which fn returns true. The .git
// directory is always pruned.
func WithSkipDir(fn func(name string) bool) DirectoryOption {
	return func(c *DirectoryConnector) {
		c.skipDir = fn
	}
}

// NewDirectoryConnector creates a connector rooted at dir.
func NewDirectoryConnector(dir string, opts ...DirectoryOption) (*DirectoryConnector, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	c := &DirectoryConnector{
		root:        abs,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute checkout directory.
func (c *DirectoryConnector) Root() string {
	return c.root
}

// Files walks the checkout in lexical order. Symlinks and oversized files are
// skipped; unreadable files are logged and skipped.
func (c *DirectoryConnector) Files(ctx context.Context) ([]File, error) {
	var files []File

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Error walking path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path == c.root {
				return nil
			}
			name := d.Name()
			if name == ".git" || (c.skipDir != nil && c.skipDir(name)) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("Failed to stat file", "path", path, "error", err)
			return nil
		}
		if info.Size() > c.maxFileSize {
			slog.Debug("Skipping oversized file", "path", path, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Failed to read file", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return nil
		}

		files = append(files, File{
			Path:         filepath.ToSlash(rel),
			Content:      string(content),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
