package queue

import (
	"context"
	"sync"
)

// Memory is a bounded in-process Queue.
type Memory struct {
	ch     chan Job
	mu     sync.RWMutex
	closed bool
}

// NewMemory creates a queue holding at most size pending jobs.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{ch: make(chan Job, size)}
}

// Enqueue adds job without blocking; a full queue returns ErrQueueFull.
func (q *Memory) Enqueue(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Retry re-enqueues job with an incremented attempt. There is no dead-letter
// list in memory, so an exhausted job is dropped.
func (q *Memory) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		return ErrRetriesExhausted
	}
	return q.Enqueue(ctx, *job)
}

// Dequeue waits for the next job.
func (q *Memory) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pending jobs.
func (q *Memory) Len() int {
	return len(q.ch)
}

// Close stops accepting jobs. Pending jobs can still be dequeued.
func (q *Memory) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
