// Package videocache keeps a freshness-windowed local mirror of videos known
// to exist on the hosting platform, keyed by normalized title.
package videocache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/internal/titles"
)

// DefaultFreshness is how long a cached record is trusted without a remote re-check.
const DefaultFreshness = 24 * time.Hour

// Store is the persistence used by Cache.
type Store interface {
	FindByNormalizedTitle(ctx context.Context, key string) (*models.PublishedVideo, error)
	Upsert(ctx context.Context, v models.PublishedVideo) error
	Count(ctx context.Context) (int, error)
}

// Stats summarizes the cache for status reporting.
type Stats struct {
	Videos         int     `json:"videos"`
	FreshnessHours float64 `json:"freshness_hours"`
}

// Cache answers title lookups from records refreshed within the freshness window.
type Cache struct {
	store     Store
	freshness time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewCache creates a cache over store. A non-positive freshness uses DefaultFreshness.
func NewCache(store Store, freshness time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Cache{store: store, freshness: freshness, now: time.Now, logger: logger}
}

// Freshness returns the configured window.
func (c *Cache) Freshness() time.Duration {
	return c.freshness
}

// Stats returns the number of cached records and the freshness window.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Videos: n, FreshnessHours: c.Freshness().Hours()}, nil
}

// Lookup returns the record for title if one was refreshed less than the window ago.
// Stale and absent records both yield nil.
func (c *Cache) Lookup(ctx context.Context, title string) (*models.PublishedVideo, error) {
	key := titles.Normalize(title)
	v, err := c.store.FindByNormalizedTitle(ctx, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	if age := c.now().Sub(v.LastRefreshed); age >= c.freshness {
		c.logger.Debug("cached video is stale", zap.String("video_id", v.VideoID), zap.Duration("age", age))
		return nil, nil
	}
	return v, nil
}

// Store upserts v by video ID, recomputing its normalized title and refresh time.
func (c *Cache) Store(ctx context.Context, v models.PublishedVideo) error {
	v.NormalizedTitle = titles.Normalize(v.Title)
	v.LastRefreshed = c.now()
	return c.store.Upsert(ctx, v)
}
