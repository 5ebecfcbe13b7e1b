package processor

import (
	"strings"

	"github.com/sha1n/relic-search/internal/domain"
)

// DefaultIgnoredDirectories are dependency, build and VCS directories that
// should not be indexed.
var DefaultIgnoredDirectories = []string{
	// Dependencies
	"node_modules", "vendor", "venv", ".venv", "packages",
	".gradle", ".m2", ".npm", ".yarn",

	// Build outputs
	"bin", "obj", "target", "build", "dist", "out",

	// Tooling
	".git", ".svn", ".hg", ".idea", ".vs", ".vscode",
	"__pycache__", ".pytest_cache",
}

// FileFilter decides which repository paths are indexable.
type FileFilter struct {
	extensions  map[string]struct{}
	ignoredDirs map[string]struct{}
}

// NewFileFilter creates a filter. Extensions are matched case-insensitively
// with or without the leading dot; directory names are matched exactly.
func NewFileFilter(extensions, ignoredDirs []string) *FileFilter {
	f := &FileFilter{
		extensions:  make(map[string]struct{}, len(extensions)),
		ignoredDirs: make(map[string]struct{}, len(ignoredDirs)),
	}
	for _, ext := range extensions {
		if ext = NormalizeExtension(ext); ext != "" {
			f.extensions[ext] = struct{}{}
		}
	}
	for _, dir := range ignoredDirs {
		if dir = strings.Trim(strings.TrimSpace(dir), "/"); dir != "" {
			f.ignoredDirs[dir] = struct{}{}
		}
	}
	return f
}

// Check returns the skip outcome for relPath, or "" when the path is
// indexable. Ignored directories take precedence over the extension check.
func (f *FileFilter) Check(relPath string) domain.Outcome {
	relPath = strings.ReplaceAll(relPath, "\\", "/")

	segments := strings.Split(relPath, "/")
	for _, segment := range segments[:len(segments)-1] {
		if f.IsIgnoredDir(segment) {
			return domain.OutcomeSkippedIgnoredDir
		}
	}

	if _, ok := f.extensions[FileExtension(relPath)]; !ok {
		return domain.OutcomeSkippedExtension
	}
	return ""
}

// IsIgnoredDir reports whether a single directory name is ignored.
func (f *FileFilter) IsIgnoredDir(name string) bool {
	_, ok := f.ignoredDirs[name]
	return ok
}

// IsBinary checks for NUL bytes in the first 512 bytes, the heuristic git
// uses.
func IsBinary(content string) bool {
	checkLen := min(len(content), 512)
	return strings.IndexByte(content[:checkLen], 0) >= 0
}
