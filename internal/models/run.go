package models

import "time"

// RunStatus represents the outcome of a review pipeline run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// ErrorKind identifies which pipeline stage a run failed in.
type ErrorKind string

const (
	ErrorKindRead      ErrorKind = "read"
	ErrorKindInference ErrorKind = "inference"
	ErrorKindPersist   ErrorKind = "persist"
)

// ReviewRun records one pipeline execution for a watched file.
// Review and fix text live in the artifact store; this row is
// operational metadata only.
type ReviewRun struct {
	ID          string
	File        string // base name of the source file
	Status      RunStatus
	ErrorKind   ErrorKind // empty on success
	ErrorDetail string
	Provider    string
	Model       string
	ContentHash string // xxh3 of the source content that was reviewed
	DurationMs  int64
	CreatedAt   time.Time
}
