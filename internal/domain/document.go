package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocumentTypeSourceFile is the document type of a whole repository file.
const DocumentTypeSourceFile = "source_file"

// ErrInvalidDocumentID indicates a document ID that does not decode to a
// repository ID and file path pair.
var ErrInvalidDocumentID = errors.New("invalid document id")

// SearchableDocument is the indexed unit representing one repository file at
// one point in time. Documents are replaced as a whole on reindex.
type SearchableDocument struct {
	// ID is derived from RepositoryID and FilePath, see NewDocumentID.
	ID string `json:"id"`

	// RepositoryID identifies the repository partition.
	// Example: "github.com_org_repo"
	RepositoryID string `json:"repositoryId"`

	// FilePath is the slash separated path relative to the repository root.
	FilePath string `json:"filePath"`

	// FileName is the last element of FilePath.
	FileName string `json:"fileName"`

	// FileExtension is the extension including the leading dot, lower case.
	// Example: ".go"
	FileExtension string `json:"fileExtension"`

	// Language is the language tag derived from FileExtension.
	Language string `json:"language"`

	// Content is the file content, possibly truncated.
	Content string `json:"content"`

	// ContentVector is the embedding of Content.
	ContentVector []float32 `json:"contentVector,omitempty"`

	LineCount    int       `json:"lineCount"`
	SizeInBytes  int64     `json:"sizeInBytes"`
	LastModified time.Time `json:"lastModified"`
	BranchName   string    `json:"branchName"`
	DocumentType string    `json:"documentType"`

	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentMetadata carries repository level attributes and extracted symbols.
type DocumentMetadata struct {
	RepositoryName  string `json:"repositoryName"`
	RepositoryOwner string `json:"repositoryOwner"`
	RepositoryURL   string `json:"repositoryUrl"`

	// CodeSymbols holds tagged symbols such as "class:Foo", sorted and unique.
	CodeSymbols []string `json:"codeSymbols"`

	// Truncated is set when Content was cut to the configured maximum.
	Truncated bool `json:"truncated,omitempty"`

	// OriginalSize is the content size in bytes before truncation.
	OriginalSize int64 `json:"originalSize,omitempty"`

	// CommitSHA is the commit the content was read at, when known.
	CommitSHA string `json:"commitSha,omitempty"`

	// CustomFields holds unschematized extension data.
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// NewDocumentID returns the URL-safe base64 encoding of "{repositoryID}:{filePath}".
// The same inputs always produce the same ID.
func NewDocumentID(repositoryID, filePath string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(repositoryID + ":" + filePath))
}

// DecodeDocumentID recovers the repository ID and file path from a document ID.
// Repository IDs never contain ':' so the first separator splits the pair.
func DecodeDocumentID(id string) (repositoryID, filePath string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidDocumentID, err)
	}

	repositoryID, filePath, found := strings.Cut(string(raw), ":")
	if !found || repositoryID == "" || filePath == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, id)
	}
	return repositoryID, filePath, nil
}

// NormalizeSymbols sorts and de-duplicates tagged symbols.
func NormalizeSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return []string{}
	}

	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Validate checks the invariants the index relies on.
func (d *SearchableDocument) Validate() error {
	if d.RepositoryID == "" {
		return errors.New("repository id cannot be empty")
	}
	if strings.Contains(d.RepositoryID, ":") {
		return fmt.Errorf("repository id %q cannot contain ':'", d.RepositoryID)
	}
	if d.FilePath == "" {
		return errors.New("file path cannot be empty")
	}
	if want := NewDocumentID(d.RepositoryID, d.FilePath); d.ID != want {
		return fmt.Errorf("document id %q does not match repository and path (want %q)", d.ID, want)
	}
	if len(d.ContentVector) == 0 {
		return errors.New("content vector cannot be empty")
	}
	return nil
}
