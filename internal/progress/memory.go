package progress

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/recbridge/backend/internal/models"
)

// DefaultMaxFinished bounds how many finished runs are retained in memory.
const DefaultMaxFinished = 10000

// Memory is an in-process Store. Active runs are kept until they finish;
// finished runs expire after the retention period.
type Memory struct {
	mu       sync.RWMutex
	active   map[string]models.ProcessingJob
	finished *expirable.LRU[string, models.ProcessingJob]
}

// NewMemory creates an in-memory store.
func NewMemory(retention time.Duration, maxFinished int) *Memory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxFinished <= 0 {
		maxFinished = DefaultMaxFinished
	}
	return &Memory{
		active:   make(map[string]models.ProcessingJob),
		finished: expirable.NewLRU[string, models.ProcessingJob](maxFinished, nil, retention),
	}
}

// Put stores a copy of job.
func (m *Memory) Put(_ context.Context, job models.ProcessingJob) error {
	snap := job.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Status.Terminal() {
		delete(m.active, snap.ID)
		m.finished.Add(snap.ID, snap)
		return nil
	}
	m.active[snap.ID] = snap
	return nil
}

// Get returns a copy of the latest snapshot.
func (m *Memory) Get(_ context.Context, id string) (models.ProcessingJob, bool, error) {
	m.mu.RLock()
	job, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		job, ok = m.finished.Get(id)
	}
	if !ok {
		return models.ProcessingJob{}, false, nil
	}
	return job.Clone(), true, nil
}

// Len returns the number of active and retained finished runs.
func (m *Memory) Len() (active, finished int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active), m.finished.Len()
}
