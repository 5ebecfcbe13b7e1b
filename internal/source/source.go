// Package source reads files and revision metadata from a repository checkout.
package source

import (
	"context"
	"time"
)

// File is a single file read from a repository.
type File struct {
	// Path is relative to the repository root and uses forward slashes.
	Path         string
	Content      string
	LastModified time.Time
}

// Connector lists the files of one repository revision.
type Connector interface {
	Files(ctx context.Context) ([]File, error)
}
