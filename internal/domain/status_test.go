package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIndexStatus_ProgressPercentage(t *testing.T) {
	tests := []struct {
		indexed, total int
		want           float64
	}{
		{25, 100, 25.0},
		{0, 0, 0.0},
		{10, 0, 0.0},
		{3, 3, 100.0},
		{1, 8, 12.5},
	}

	for _, tt := range tests {
		s := IndexStatus{DocumentsIndexed: tt.indexed, TotalDocuments: tt.total}
		if got := s.ProgressPercentage(); got != tt.want {
			t.Errorf("ProgressPercentage(%d/%d) = %v, want %v", tt.indexed, tt.total, got, tt.want)
		}
	}
}

func TestStatus_Transitions(t *testing.T) {
	legal := [][2]Status{
		{StatusNotStarted, StatusInProgress},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusError},
		{StatusCompleted, StatusRefreshing},
		{StatusRefreshing, StatusCompleted},
		{StatusRefreshing, StatusError},
		{StatusError, StatusInProgress},
	}
	for _, tr := range legal {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Errorf("%s -> %s should be legal: %v", tr[0], tr[1], err)
		}
	}

	illegal := [][2]Status{
		{StatusNotStarted, StatusCompleted},
		{StatusNotStarted, StatusRefreshing},
		{StatusError, StatusCompleted},
		{StatusError, StatusRefreshing},
		{StatusInProgress, StatusRefreshing},
	}
	for _, tr := range illegal {
		if err := ValidateTransition(tr[0], tr[1]); err == nil {
			t.Errorf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
}

func TestStatus_IsRunning(t *testing.T) {
	if !StatusInProgress.IsRunning() || !StatusRefreshing.IsRunning() {
		t.Error("IN_PROGRESS and REFRESHING are running states")
	}
	if StatusCompleted.IsRunning() || StatusError.IsRunning() || StatusNotStarted.IsRunning() {
		t.Error("terminal and initial states are not running")
	}
}

func TestPartialBatchError(t *testing.T) {
	cause := errors.New("boom")
	err := &PartialBatchError{
		Failed:    []FailedDocument{{ID: "a", Err: cause}, {ID: "b", Err: ErrTransient}},
		Succeeded: 3,
	}

	if !strings.Contains(err.Error(), "2 of 5") {
		t.Errorf("Error() = %q, want counts", err.Error())
	}
	if got := err.FailedIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("FailedIDs() = %v", got)
	}

	wrapped := fmt.Errorf("indexing: %w", err)
	if !errors.Is(wrapped, cause) || !errors.Is(wrapped, ErrTransient) {
		t.Error("causes should be reachable through errors.Is")
	}

	var pbe *PartialBatchError
	if !errors.As(wrapped, &pbe) {
		t.Error("errors.As should find *PartialBatchError")
	}
}

func TestOutcome_IsSkip(t *testing.T) {
	for _, o := range []Outcome{OutcomeSkippedExtension, OutcomeSkippedIgnoredDir, OutcomeSkippedBinary, OutcomeEmbeddingFailed} {
		if !o.IsSkip() {
			t.Errorf("%s should be a skip", o)
		}
	}
	for _, o := range []Outcome{OutcomeIndexed, OutcomeFailed, OutcomeCanceled} {
		if o.IsSkip() {
			t.Errorf("%s should not be a skip", o)
		}
	}
}
