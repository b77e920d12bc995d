package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	RunID string `json:"run_id"`
}

func TestNewJob(t *testing.T) {
	job, err := NewJob(JobTypeProcessMatches, samplePayload{RunID: "r1"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeProcessMatches, job.Type)
	assert.JSONEq(t, `{"run_id":"r1"}`, string(job.Payload))
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(2)
	j1, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "1"})
	j2, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "2"})
	j3, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "3"})

	require.NoError(t, q.Enqueue(ctx, j1))
	require.NoError(t, q.Enqueue(ctx, j2))
	assert.ErrorIs(t, q.Enqueue(ctx, j3), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, j1.ID, got.ID)

	q.Close()
	assert.ErrorIs(t, q.Enqueue(ctx, j3), ErrClosed)
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, j2.ID, got.ID)
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewMemory(1).Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newTestRedisQueue(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := NewRedis(rdb, nil)
	q.timeout = time.Second
	return mr, q
}

func TestRedisQueueFIFO(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)
	j1, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "1"})
	j2, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "2"})
	require.NoError(t, q.Enqueue(ctx, j1))
	require.NoError(t, q.Enqueue(ctx, j2))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, j1.ID, got.ID)
	var p samplePayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	assert.Equal(t, "1", p.RunID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, j2.ID, got.ID)
}

func TestRedisQueueEmptyTimesOut(t *testing.T) {
	_, q := newTestRedisQueue(t)
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisQueueInvalidPayloadGoesToDLQ(t *testing.T) {
	ctx := context.Background()
	mr, q := newTestRedisQueue(t)
	_, err := mr.Push(QueueRuns, "{not json")
	require.NoError(t, err)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, dlq)
}

func TestRedisQueueRetryCountsAttempts(t *testing.T) {
	ctx := context.Background()
	mr, q := newTestRedisQueue(t)
	j, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "1"})
	require.NoError(t, q.Enqueue(ctx, j))

	for attempt := 1; attempt < MaxRetries; attempt++ {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, attempt-1, got.Attempt)
		require.NoError(t, q.Retry(ctx, got))
	}

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, MaxRetries-1, got.Attempt)
	assert.ErrorIs(t, q.Retry(ctx, got), ErrRetriesExhausted)

	assert.False(t, mr.Exists(QueueRuns))
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	var dead Job
	require.NoError(t, json.Unmarshal([]byte(dlq[0]), &dead))
	assert.Equal(t, j.ID, dead.ID)
	assert.Equal(t, MaxRetries, dead.Attempt)
}

func TestMemoryQueueRetry(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(2)
	j, _ := NewJob(JobTypeProcessMatches, samplePayload{RunID: "1"})

	require.NoError(t, q.Retry(ctx, &j))
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempt)

	got.Attempt = MaxRetries - 1
	assert.ErrorIs(t, q.Retry(ctx, got), ErrRetriesExhausted)
	assert.Equal(t, 0, q.Len())
}
