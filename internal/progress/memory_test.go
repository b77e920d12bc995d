package progress

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recbridge/backend/internal/models"
)

func job(id string, status models.JobStatus, msgs ...string) models.ProcessingJob {
	return models.ProcessingJob{ID: id, Status: status, Total: 2, Messages: msgs, CreatedAt: time.Now()}
}

func TestMemoryGetUnknown(t *testing.T) {
	_, ok, err := NewMemory(time.Hour, 10).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoresCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)
	j := job("r1", models.JobStatusProcessing, "Processing: A")
	require.NoError(t, m.Put(ctx, j))

	// Mutating the caller's slice after Put must not leak into the store.
	j.Messages[0] = "changed"
	got, ok, err := m.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Processing: A"}, got.Messages)

	// Nor does mutating a returned snapshot.
	got.Messages[0] = "also changed"
	again, _, _ := m.Get(ctx, "r1")
	assert.Equal(t, "Processing: A", again.Messages[0])
}

func TestMemoryTerminalMovesToFinished(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)
	require.NoError(t, m.Put(ctx, job("r1", models.JobStatusProcessing)))
	active, finished := m.Len()
	assert.Equal(t, 1, active)
	assert.Equal(t, 0, finished)

	require.NoError(t, m.Put(ctx, job("r1", models.JobStatusCompleted)))
	active, finished = m.Len()
	assert.Equal(t, 0, active)
	assert.Equal(t, 1, finished)

	got, ok, err := m.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.Messages)
}

func TestMemoryFinishedExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(50*time.Millisecond, 10)
	require.NoError(t, m.Put(ctx, job("r1", models.JobStatusError)))
	require.NoError(t, m.Put(ctx, job("r2", models.JobStatusProcessing)))

	assert.Eventually(t, func() bool {
		_, ok, _ := m.Get(ctx, "r1")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)

	// Active runs never expire.
	_, ok, _ := m.Get(ctx, "r2")
	assert.True(t, ok)
}

func TestMemoryFinishedBounded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Put(ctx, job(fmt.Sprintf("r%d", i), models.JobStatusCompleted)))
	}
	_, ok, _ := m.Get(ctx, "r0")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "r2")
	assert.True(t, ok)
}

func TestMemoryConcurrentWritersAndReaders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 100)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		id := fmt.Sprintf("run-%d", w)
		wg.Add(2)
		go func() {
			defer wg.Done()
			j := job(id, models.JobStatusProcessing)
			for i := 1; i <= 50; i++ {
				j.Current = i
				j.Total = 50
				j.Messages = append(j.Messages, fmt.Sprintf("step %d", i))
				_ = m.Put(ctx, j)
			}
		}()
		go func() {
			defer wg.Done()
			last := 0
			for i := 0; i < 200; i++ {
				got, ok, _ := m.Get(ctx, id)
				if !ok {
					continue
				}
				// A snapshot's log always matches its counter.
				assert.Len(t, got.Messages, got.Current)
				assert.GreaterOrEqual(t, got.Current, last)
				last = got.Current
			}
		}()
	}
	wg.Wait()
}
