package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks backend failures worth retrying (timeouts, connectivity).
	ErrTransient = errors.New("transient backend error")

	// ErrPermanent marks backend failures that must not be retried
	// (schema mismatch, closed index, authorization).
	ErrPermanent = errors.New("permanent backend error")

	// ErrInvalidQuery is matched by every *InvalidQueryError.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrIndexNotReady indicates the index has not been created yet.
	ErrIndexNotReady = errors.New("index not ready")
)

// Outcome is the per-file result of processing. Skips are expected and are
// not errors.
type Outcome string

const (
	OutcomeIndexed           Outcome = "indexed"
	OutcomeSkippedExtension  Outcome = "skipped_extension"
	OutcomeSkippedIgnoredDir Outcome = "skipped_ignored_dir"
	OutcomeSkippedBinary     Outcome = "skipped_binary"
	OutcomeEmbeddingFailed   Outcome = "embedding_failed"
	OutcomeFailed            Outcome = "failed"
	OutcomeCanceled          Outcome = "canceled"
)

// IsSkip reports whether the outcome is an expected skip.
func (o Outcome) IsSkip() bool {
	switch o {
	case OutcomeSkippedExtension, OutcomeSkippedIgnoredDir, OutcomeSkippedBinary, OutcomeEmbeddingFailed:
		return true
	}
	return false
}

// InvalidQueryError describes a malformed query or filter. It is never retried.
type InvalidQueryError struct {
	Reason string
}

// NewInvalidQueryError formats an InvalidQueryError.
func NewInvalidQueryError(format string, args ...any) *InvalidQueryError {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidQuery) match.
func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// FailedDocument pairs a document ID with the reason it was not indexed.
type FailedDocument struct {
	ID  string
	Err error
}

// PartialBatchError reports the documents of a batch that failed. The
// documents not listed were committed.
type PartialBatchError struct {
	Failed    []FailedDocument
	Succeeded int
}

func (e *PartialBatchError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.ID)
	}
	const maxListed = 5
	if len(ids) > maxListed {
		ids = append(ids[:maxListed], fmt.Sprintf("... (%d more)", len(e.Failed)-maxListed))
	}
	return fmt.Sprintf("%d of %d documents failed to index: %s",
		len(e.Failed), len(e.Failed)+e.Succeeded, strings.Join(ids, ", "))
}

// FailedIDs returns the IDs of the failed documents.
func (e *PartialBatchError) FailedIDs() []string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.ID
	}
	return ids
}

// Unwrap exposes the per-document causes to errors.Is/As.
func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
