// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies what a job does. Unknown kinds are rejected at
// enqueue time, never silently accepted.
type Kind string

const (
	// KindCattleSpawn provisions one ephemeral instance and hands it
	// a bootstrap token.
	KindCattleSpawn Kind = "cattle.spawn"

	// KindCattleReap destroys instances past their TTL or orphaned.
	KindCattleReap Kind = "cattle.reap"
)

// KnownKinds lists every kind the orchestrator can execute, in a
// stable order for help text and error messages.
func KnownKinds() []Kind {
	return []Kind{KindCattleSpawn, KindCattleReap}
}

// Status is a job's lifecycle state. Status only moves forward:
// queued → running → {succeeded, failed, canceled}, except that a
// retryable failure re-enters queued with an incremented attempt.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ParseStatus validates a caller-supplied status filter string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled:
		return Status(s), nil
	}
	return "", &ValidationError{Message: fmt.Sprintf("unknown status %q", s)}
}

// Job is one durable queue entry.
type Job struct {
	JobID          string          `json:"jobId"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"maxAttempts"`
	Priority       int             `json:"priority"`
	RunAt          *time.Time      `json:"runAt,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Requester      string          `json:"requester"`
	Payload        json.RawMessage `json:"payload"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Summary is the compact projection returned by list operations.
type Summary struct {
	JobID       string    `json:"jobId"`
	Kind        Kind      `json:"kind"`
	Status      Status    `json:"status"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"maxAttempts"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a job ID does not exist.
var ErrNotFound = errors.New("job not found")

// ValidationError rejects a request before any durable write: unknown
// kind, malformed payload, unsafe environment variable name, or an
// out-of-range parameter.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// StateError reports a transition applied to a job that is not in the
// required state, e.g. completing a job that is not running.
type StateError struct {
	JobID  string
	Status Status
	Want   Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job %s is %s, not %s", e.JobID, e.Status, e.Want)
}
