package checkpoint

import (
	"time"
)

// Outcome is how an attempt at a work item ended
type Outcome string

const (
	OutcomeComplete    Outcome = "complete"
	OutcomeError       Outcome = "error"
	OutcomeInterrupted Outcome = "interrupted"
)

// AttemptRecord is one journal entry: a single attempt at a single work item
type AttemptRecord struct {
	RunID      string    `json:"run_id"`
	Index      int       `json:"index"`
	SourceURL  string    `json:"source_url"`
	Identifier string    `json:"identifier"`
	Outcome    Outcome   `json:"outcome"`
	Kind       string    `json:"kind,omitempty"`
	Attempt    int       `json:"attempt"`
	Detail     string    `json:"detail,omitempty"`
	Files      []string  `json:"files,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store is an append-only journal of item attempts. The worklist stays the source
// of truth for resumption; the journal keeps the history the worklist overwrites.
type Store interface {
	RecordAttempt(record *AttemptRecord) error
	ListAttempts(index int) ([]*AttemptRecord, error)

	// Cleanup
	Close() error
}

// NopStore discards every record
type NopStore struct{}

func (NopStore) RecordAttempt(*AttemptRecord) error         { return nil }
func (NopStore) ListAttempts(int) ([]*AttemptRecord, error) { return nil, nil }
func (NopStore) Close() error                               { return nil }
