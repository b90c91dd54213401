package domain

import (
	"time"

	"github.com/google/uuid"
)

// FetchTask is a single unit of fetch work. It is created by the
// scheduler, owned exclusively by the fetch worker processing it, and
// destroyed on a terminal outcome (success, permanent failure, or
// dead-letter).
type FetchTask struct {
	ID          string
	SourceID    string
	URL         string
	Attempt     int
	ScheduledAt time.Time
	// NotBefore is the backoff deadline; the fetcher must not retry
	// the task before this instant.
	NotBefore time.Time
}

// NewFetchTask creates a task for the given source and locator.
func NewFetchTask(sourceID, url string) *FetchTask {
	return &FetchTask{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		URL:         url,
		ScheduledAt: time.Now(),
	}
}

// DeadLetterKind distinguishes what kind of work was abandoned.
type DeadLetterKind string

const (
	// DeadLetterFetch marks an abandoned fetch task.
	DeadLetterFetch DeadLetterKind = "fetch"
	// DeadLetterAnalysis marks an article whose analysis exhausted
	// its retries.
	DeadLetterAnalysis DeadLetterKind = "analysis"
)

// DeadLetter records permanently abandoned work for operator
// inspection. It is a report, never an error value.
type DeadLetter struct {
	ID        string         `db:"id"         json:"id"`
	Kind      DeadLetterKind `db:"kind"       json:"kind"`
	SourceID  string         `db:"source_id"  json:"source_id"`
	Ref       string         `db:"ref"        json:"ref"`
	Reason    string         `db:"reason"     json:"reason"`
	Attempts  int            `db:"attempts"   json:"attempts"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// NewDeadLetter builds a dead-letter record with a fresh identity.
func NewDeadLetter(kind DeadLetterKind, sourceID, ref, reason string, attempts int) *DeadLetter {
	return &DeadLetter{
		ID:        uuid.NewString(),
		Kind:      kind,
		SourceID:  sourceID,
		Ref:       ref,
		Reason:    reason,
		Attempts:  attempts,
		CreatedAt: time.Now(),
	}
}
