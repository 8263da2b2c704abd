package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further transitions can occur from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

const (
	// DefaultTimeout applies when an enqueue request leaves Timeout unset.
	DefaultTimeout = 180 * time.Second
	// DefaultResultTTL applies when an enqueue request leaves ResultTTL unset.
	DefaultResultTTL = 500 * time.Second
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobTerminal   = errors.New("job already in a terminal state")
	ErrNotCancelable = errors.New("only queued jobs can be canceled")
)

// Job is a snapshot of one row of the queue store. It doubles as the handle
// callers poll: Refresh re-reads the mutable fields, the Is* accessors report
// the status as of the last read.
type Job struct {
	ID          string
	Queue       string
	Func        string
	Args        json.RawMessage
	Kwargs      json.RawMessage
	Description string
	Status      Status
	Timeout     time.Duration
	ResultTTL   time.Duration
	TTL         time.Duration
	ReturnValue json.RawMessage
	LastError   *string
	WorkerName  *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time

	q *Queue
}

// EnqueueRequest describes a call for a worker to make: the callable named by
// Func, invoked with Args positionally and Kwargs as named parameters.
// Zero durations take the queue defaults. A non-positive TTL never expires.
type EnqueueRequest struct {
	Func        string
	Args        []any
	Kwargs      map[string]any
	Description string
	Timeout     time.Duration
	ResultTTL   time.Duration
	TTL         time.Duration
}

// IsFinished reports whether the job completed and its result is available.
func (j *Job) IsFinished() bool { return j.Status == StatusFinished }

// IsFailed reports whether the job ended without a result. Canceled jobs count
// as failed.
func (j *Job) IsFailed() bool { return j.Status == StatusFailed || j.Status == StatusCanceled }

// Result returns the job's return value, or nil until it has finished.
func (j *Job) Result() json.RawMessage {
	if !j.IsFinished() {
		return nil
	}
	return j.ReturnValue
}

// JobID returns the job ID.
func (j *Job) JobID() string { return j.ID }

// Refresh re-reads the job's status, result and error fields from the store.
func (j *Job) Refresh(ctx context.Context) error {
	if j.q == nil {
		return errors.New("job is not attached to a queue")
	}
	return j.q.refresh(ctx, j)
}
