// Package progress holds snapshots of pipeline runs for polling clients.
package progress

import (
	"context"
	"time"

	"github.com/recbridge/backend/internal/models"
)

// DefaultRetention is how long a finished run stays pollable.
const DefaultRetention = 24 * time.Hour

// Store keeps the latest snapshot of each run. Writers for a run are serialized
// by the pipeline; Get returns a copy.
type Store interface {
	Put(ctx context.Context, job models.ProcessingJob) error
	Get(ctx context.Context, id string) (models.ProcessingJob, bool, error)
}
