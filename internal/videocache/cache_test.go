package videocache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recbridge/backend/internal/models"
)

// memStore is an in-memory Store keyed by video ID.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]models.PublishedVideo
	findErr error
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]models.PublishedVideo{}}
}

func (s *memStore) FindByNormalizedTitle(_ context.Context, key string) (*models.PublishedVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var best *models.PublishedVideo
	for _, v := range s.byID {
		if v.NormalizedTitle != key {
			continue
		}
		if best == nil || v.LastRefreshed.After(best.LastRefreshed) {
			c := v
			best = &c
		}
	}
	return best, nil
}

func (s *memStore) Upsert(_ context.Context, v models.PublishedVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[v.VideoID] = v
	return nil
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID), nil
}

func newTestCache(store Store, now time.Time) *Cache {
	c := NewCache(store, 24*time.Hour, nil)
	c.now = func() time.Time { return now }
	return c
}

func TestCacheLookupFreshness(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		age    time.Duration
		wantOK bool
	}{
		{"fresh", time.Hour, true},
		{"just under window", 24*time.Hour - time.Second, true},
		{"at window", 24 * time.Hour, false},
		{"stale", 48 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.byID["v1"] = models.PublishedVideo{
				VideoID:         "v1",
				Title:           "Q&A: Budget",
				NormalizedTitle: "qa budget",
				LastRefreshed:   now.Add(-tt.age),
			}
			v, err := newTestCache(store, now).Lookup(context.Background(), "qa   BUDGET")
			require.NoError(t, err)
			if tt.wantOK {
				require.NotNil(t, v)
				assert.Equal(t, "v1", v.VideoID)
			} else {
				assert.Nil(t, v)
			}
		})
	}
}

func TestCacheLookupAbsent(t *testing.T) {
	v, err := newTestCache(newMemStore(), time.Now()).Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCacheLookupStoreError(t *testing.T) {
	store := newMemStore()
	store.findErr = errors.New("db down")
	_, err := newTestCache(store, time.Now()).Lookup(context.Background(), "x")
	assert.Error(t, err)
}

func TestCacheStoreRecomputesKeyAndRefresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	c := newTestCache(store, now)

	require.NoError(t, c.Store(context.Background(), models.PublishedVideo{
		VideoID:         "v1",
		Title:           "Town Hall, 2024!",
		NormalizedTitle: "stale key",
	}))
	got := store.byID["v1"]
	assert.Equal(t, "town hall 2024", got.NormalizedTitle)
	assert.Equal(t, now, got.LastRefreshed)

	// Same ID, new title: overwritten, old key no longer matches.
	require.NoError(t, c.Store(context.Background(), models.PublishedVideo{VideoID: "v1", Title: "Renamed"}))
	v, err := c.Lookup(context.Background(), "Town Hall 2024")
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = c.Lookup(context.Background(), "renamed")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Len(t, store.byID, 1)
}

func TestCacheStats(t *testing.T) {
	store := newMemStore()
	c := NewCache(store, 6*time.Hour, nil)
	require.NoError(t, c.Store(context.Background(), models.PublishedVideo{VideoID: "v1", Title: "One"}))
	require.NoError(t, c.Store(context.Background(), models.PublishedVideo{VideoID: "v2", Title: "Two"}))

	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Videos: 2, FreshnessHours: 6}, st)
}
