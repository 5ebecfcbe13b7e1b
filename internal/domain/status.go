package domain

import (
	"fmt"
	"time"
)

// Status is the indexing lifecycle state of a repository.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
	StatusRefreshing Status = "REFRESHING"
)

// IsRunning reports whether a run is active in this state.
func (s Status) IsRunning() bool {
	return s == StatusInProgress || s == StatusRefreshing
}

// allowedTransitions lists the legal lifecycle moves. ERROR only leaves
// through an explicitly started run, which re-enters IN_PROGRESS.
var allowedTransitions = map[Status][]Status{
	StatusNotStarted: {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusError},
	StatusCompleted:  {StatusRefreshing, StatusInProgress},
	StatusRefreshing: {StatusCompleted, StatusError},
	StatusError:      {StatusInProgress},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal move.
func ValidateTransition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	return nil
}

// IndexStatus reports the progress of a repository indexing run.
type IndexStatus struct {
	RepositoryID        string     `json:"repositoryId"`
	RunID               string     `json:"runId,omitempty"`
	Status              Status     `json:"status"`
	DocumentsIndexed    int        `json:"documentsIndexed"`
	TotalDocuments      int        `json:"totalDocuments"`
	LastIndexed         *time.Time `json:"lastIndexed,omitempty"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
}

// ProgressPercentage is DocumentsIndexed/TotalDocuments*100, or 0 when the
// total is unknown.
func (s IndexStatus) ProgressPercentage() float64 {
	if s.TotalDocuments <= 0 {
		return 0
	}
	return float64(s.DocumentsIndexed) / float64(s.TotalDocuments) * 100
}
