package videocache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/recbridge/backend/internal/models"
	"github.com/recbridge/backend/pkg/database"
)

// Repository persists published video records in Postgres.
type Repository struct {
	db database.DB
}

// NewRepository creates a video cache repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// FindByNormalizedTitle returns the most recently refreshed record for key, or nil.
func (r *Repository) FindByNormalizedTitle(ctx context.Context, key string) (*models.PublishedVideo, error) {
	const q = `SELECT video_id, title, title_normalized, COALESCE(description,''), COALESCE(published_at, last_refreshed),
		COALESCE(duration,''), COALESCE(privacy_status,''), COALESCE(channel_id,''), last_refreshed
		FROM published_videos WHERE title_normalized = $1 ORDER BY last_refreshed DESC LIMIT 1`
	var v models.PublishedVideo
	err := r.db.QueryRow(ctx, q, key).Scan(&v.VideoID, &v.Title, &v.NormalizedTitle, &v.Description, &v.PublishedAt,
		&v.Duration, &v.PrivacyStatus, &v.ChannelID, &v.LastRefreshed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// Upsert inserts v or updates the row with the same video_id. Fields v leaves
// empty keep the values stored by an earlier upsert.
func (r *Repository) Upsert(ctx context.Context, v models.PublishedVideo) error {
	const q = `INSERT INTO published_videos (video_id, title, title_normalized, description, published_at, duration, privacy_status, channel_id, last_refreshed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title,
			title_normalized = EXCLUDED.title_normalized,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), published_videos.description),
			published_at = COALESCE(EXCLUDED.published_at, published_videos.published_at),
			duration = COALESCE(NULLIF(EXCLUDED.duration, ''), published_videos.duration),
			privacy_status = COALESCE(NULLIF(EXCLUDED.privacy_status, ''), published_videos.privacy_status),
			channel_id = COALESCE(NULLIF(EXCLUDED.channel_id, ''), published_videos.channel_id),
			last_refreshed = EXCLUDED.last_refreshed`
	var publishedAt *time.Time
	if !v.PublishedAt.IsZero() {
		publishedAt = &v.PublishedAt
	}
	_, err := r.db.Exec(ctx, q, v.VideoID, v.Title, v.NormalizedTitle, v.Description, publishedAt,
		v.Duration, v.PrivacyStatus, v.ChannelID, v.LastRefreshed)
	return err
}

// Count returns the number of cached records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM published_videos`).Scan(&n)
	return n, err
}
