package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Queue on a Redis list (RPUSH / BLPOP), shared across processes.
type Redis struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedis creates a Redis-backed queue on QueueRuns.
func NewRedis(client redis.UniversalClient, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, key: QueueRuns, timeout: 5 * time.Second, logger: logger}
}

// Enqueue appends job to the list.
func (q *Redis) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return nil
}

// Dequeue pops the next job, waiting at most the poll timeout per call.
// Undecodable payloads are moved to QueueDLQ.
func (q *Redis) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, q.timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		_ = q.deadLetter(ctx, result[1])
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues job with an incremented attempt. If the attempt reaches
// MaxRetries the job goes to QueueDLQ and ErrRetriesExhausted is returned.
func (q *Redis) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.DeadLetter(ctx, job); err != nil {
			return err
		}
		q.logger.Warn("job out of retries", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return ErrRetriesExhausted
	}
	if err := q.Enqueue(ctx, *job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetter records a job that cannot be processed.
func (q *Redis) DeadLetter(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.deadLetter(ctx, string(raw))
}

func (q *Redis) deadLetter(ctx context.Context, raw string) error {
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err))
		return err
	}
	q.logger.Warn("job moved to DLQ")
	return nil
}
