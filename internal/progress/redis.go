package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recbridge/backend/internal/models"
)

// KeyPrefix namespaces run snapshots in Redis.
const KeyPrefix = "progress:run:"

// Redis is a Store shared between the API server and separate worker processes.
// Active runs have no expiry; finished runs expire after the retention period.
type Redis struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

// NewRedis creates a Redis-backed store.
func NewRedis(rdb redis.UniversalClient, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Redis{rdb: rdb, retention: retention}
}

func key(id string) string { return KeyPrefix + id }

// Put writes the snapshot as JSON.
func (r *Redis) Put(ctx context.Context, job models.ProcessingJob) error {
	raw, err := json.Marshal(job.Clone())
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	var ttl time.Duration
	if job.Status.Terminal() {
		ttl = r.retention
	}
	if err := r.rdb.Set(ctx, key(job.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get reads the snapshot, reporting false when the run is unknown or expired.
func (r *Redis) Get(ctx context.Context, id string) (models.ProcessingJob, bool, error) {
	raw, err := r.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ProcessingJob{}, false, nil
		}
		return models.ProcessingJob{}, false, fmt.Errorf("redis get: %w", err)
	}
	var job models.ProcessingJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return models.ProcessingJob{}, false, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.Messages == nil {
		job.Messages = []string{}
	}
	return job, true, nil
}
