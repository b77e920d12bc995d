package videocache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/models"
)

// Searcher is the remote side of the duplicate check.
type Searcher interface {
	SearchByTitle(ctx context.Context, title string) (*models.PublishedVideo, error)
	Recent(ctx context.Context, max int64) ([]models.PublishedVideo, error)
}

// Checker resolves whether a title is already published, cache first.
type Checker struct {
	cache  *Cache
	remote Searcher
	logger *zap.Logger
}

// NewChecker creates a duplicate checker.
func NewChecker(cache *Cache, remote Searcher, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{cache: cache, remote: remote, logger: logger}
}

// Check returns the published video for title, if any, and whether it came from the cache.
// A cache read error falls through to the remote search. Remote hits are stored.
func (c *Checker) Check(ctx context.Context, title string) (*models.PublishedVideo, bool, error) {
	v, err := c.cache.Lookup(ctx, title)
	if err != nil {
		c.logger.Warn("video cache lookup failed", zap.String("title", title), zap.Error(err))
	} else if v != nil {
		return v, true, nil
	}

	v, err = c.remote.SearchByTitle(ctx, title)
	if err != nil {
		return nil, false, fmt.Errorf("search published videos: %w", err)
	}
	if v == nil {
		return nil, false, nil
	}
	if err := c.cache.Store(ctx, *v); err != nil {
		c.logger.Warn("video cache store failed", zap.String("video_id", v.VideoID), zap.Error(err))
	}
	return v, false, nil
}

// Remember stores a freshly published video.
func (c *Checker) Remember(ctx context.Context, v models.PublishedVideo) error {
	return c.cache.Store(ctx, v)
}

// Stats reports the size and freshness window of the local cache.
func (c *Checker) Stats(ctx context.Context) (Stats, error) {
	return c.cache.Stats(ctx)
}

// Refresh pulls up to max recent uploads and upserts them. It returns how many were stored.
func (c *Checker) Refresh(ctx context.Context, max int64) (int, error) {
	videos, err := c.remote.Recent(ctx, max)
	if err != nil {
		return 0, fmt.Errorf("list recent uploads: %w", err)
	}
	stored := 0
	for _, v := range videos {
		if err := c.cache.Store(ctx, v); err != nil {
			c.logger.Warn("video cache store failed", zap.String("video_id", v.VideoID), zap.Error(err))
			continue
		}
		stored++
	}
	c.logger.Info("video cache refreshed", zap.Int("fetched", len(videos)), zap.Int("stored", stored))
	return stored, nil
}
