package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// QueueRuns is the Redis list key for pipeline run jobs.
	QueueRuns = "worker:runs"
	// QueueDLQ is the dead-letter list for undecodable payloads and jobs out of retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts a job gets before it is dead-lettered.
	MaxRetries = 3
	// RetryBackoff is the delay after a failed dequeue.
	RetryBackoff = 2 * time.Second
)

// ErrQueueFull is returned when a bounded queue cannot accept more jobs.
var ErrQueueFull = errors.New("queue full")

// ErrRetriesExhausted is returned by Retry once a job has used all its attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrClosed is returned by Dequeue once a local queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// JobType identifies the job kind.
type JobType string

const (
	JobTypeProcessMatches JobType = "process_matches"
)

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob wraps payload in an envelope with a fresh ID.
func NewJob(typ JobType, payload any) (Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// Queue moves jobs from the API to workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available or ctx is done. A nil job with a nil
	// error means nothing usable arrived and the caller should try again.
	Dequeue(ctx context.Context) (*Job, error)
	// Retry hands job back with Attempt incremented. Past MaxRetries it
	// returns ErrRetriesExhausted instead.
	Retry(ctx context.Context, job *Job) error
}
